// Package config holds the detection configuration snapshot read once per
// frame by the pipeline, together with its defaults, file loader, and the
// mutex-guarded holder used to swap it at runtime.
package config

// MotionAlgorithm selects the motion detection strategy.
type MotionAlgorithm string

const (
	MotionFrameDiff MotionAlgorithm = "frame_diff"
	MotionMOG2      MotionAlgorithm = "mog2"
	MotionKNN       MotionAlgorithm = "knn"
)

// ColorSpace selects the color anomaly quantization space.
type ColorSpace string

const (
	ColorSpaceBGR ColorSpace = "bgr"
	ColorSpaceHSV ColorSpace = "hsv"
	ColorSpaceLAB ColorSpace = "lab"
)

// FusionMode selects how motion and color detections are combined.
type FusionMode string

const (
	FusionUnion          FusionMode = "union"
	FusionIntersection   FusionMode = "intersection"
	FusionColorPriority  FusionMode = "color_priority"
	FusionMotionPriority FusionMode = "motion_priority"
)

// BlobMethod selects how blobs are extracted from binary masks.
type BlobMethod string

const (
	BlobContour    BlobMethod = "contour"
	BlobComponents BlobMethod = "components"
)

// RenderShape selects the overlay drawn for each detection.
type RenderShape string

const (
	RenderBox    RenderShape = "box"
	RenderCircle RenderShape = "circle"
	RenderDot    RenderShape = "dot"
	RenderOff    RenderShape = "off"
)

// HueRange is an inclusive OpenCV hue range (0-179). Min > Max wraps
// across the red boundary.
type HueRange struct {
	Min int `json:"min" validate:"min=0,max=179"`
	Max int `json:"max" validate:"min=0,max=179"`
}

// Contains reports whether hue falls inside the range.
func (r HueRange) Contains(hue float64) bool {
	lo, hi := float64(r.Min), float64(r.Max)
	if lo <= hi {
		return hue >= lo && hue <= hi
	}
	return hue >= lo || hue <= hi
}

// DetectionConfig is an immutable-per-frame snapshot of every tunable used
// by the detection stages and the renderer.
type DetectionConfig struct {
	// Processing resolution; larger frames are scaled down to fit.
	ProcessingWidth  int     `json:"processing_width" validate:"min=16"`
	ProcessingHeight int     `json:"processing_height" validate:"min=16"`
	TargetFPS        float64 `json:"target_fps" validate:"min=0"`

	// Motion detection
	EnableMotion         bool            `json:"enable_motion"`
	MotionAlgorithm      MotionAlgorithm `json:"motion_algorithm" validate:"oneof=frame_diff mog2 knn"`
	MinDetectionArea     float64         `json:"min_detection_area" validate:"min=0"`
	MaxDetectionArea     float64         `json:"max_detection_area" validate:"gtfield=MinDetectionArea"`
	MotionThreshold      int             `json:"motion_threshold" validate:"min=1,max=255"`
	BlurKernelSize       int             `json:"blur_kernel_size" validate:"min=0,max=51"`
	MorphologyKernelSize int             `json:"morphology_kernel_size" validate:"min=1,max=31"`
	EnableMorphology     bool            `json:"enable_morphology"`
	BlobMethod           BlobMethod      `json:"blob_method" validate:"oneof=contour components"`

	// Background subtraction
	BgHistory         int     `json:"bg_history" validate:"min=1"`
	BgVarThreshold    float64 `json:"bg_var_threshold" validate:"gt=0"`
	BgDetectShadows   bool    `json:"bg_detect_shadows"`
	KNNDist2Threshold float64 `json:"knn_dist2_threshold" validate:"gt=0"`
	ShadowThreshold   int     `json:"shadow_threshold" validate:"min=0,max=255"`

	// Pixel persistence (N of M motion masks)
	EnablePersistenceFilter bool `json:"enable_persistence_filter"`
	PersistenceFrames       int  `json:"persistence_frames" validate:"min=1,max=30"`
	PersistenceThreshold    int  `json:"persistence_threshold" validate:"min=1,ltefield=PersistenceFrames"`

	// Camera movement
	PauseOnCameraMovement   bool    `json:"pause_on_camera_movement"`
	CameraMovementThreshold float64 `json:"camera_movement_threshold" validate:"gt=0,lte=1"`

	// Color anomaly detection
	EnableColorQuantization bool       `json:"enable_color_quantization"`
	ColorSpace              ColorSpace `json:"color_space" validate:"oneof=bgr hsv lab"`
	ColorQuantizationBits   int        `json:"color_quantization_bits" validate:"min=1,max=8"`
	ColorRarityPercentile   float64    `json:"color_rarity_percentile" validate:"min=0,max=100"`
	ColorMinDetectionArea   float64    `json:"color_min_detection_area" validate:"min=0"`
	ColorMaxDetectionArea   float64    `json:"color_max_detection_area" validate:"gtfield=ColorMinDetectionArea"`
	HSVMinSaturation        int        `json:"hsv_min_saturation" validate:"min=0,max=255"`
	LABMinChroma            float64    `json:"lab_min_chroma" validate:"min=0"`
	EnableHueExpansion      bool       `json:"enable_hue_expansion"`
	HueExpansionRange       int        `json:"hue_expansion_range" validate:"min=1,max=89"`

	// Fusion
	EnableFusion bool       `json:"enable_fusion"`
	FusionMode   FusionMode `json:"fusion_mode" validate:"oneof=union intersection color_priority motion_priority"`

	// Temporal voting
	EnableTemporalVoting    bool `json:"enable_temporal_voting"`
	TemporalWindowFrames    int  `json:"temporal_window_frames" validate:"min=1,max=30"`
	TemporalThresholdFrames int  `json:"temporal_threshold_frames" validate:"min=1,ltefield=TemporalWindowFrames"`

	// False positive reduction
	EnableAspectRatioFilter   bool       `json:"enable_aspect_ratio_filter"`
	MinAspectRatio            float64    `json:"min_aspect_ratio" validate:"gt=0"`
	MaxAspectRatio            float64    `json:"max_aspect_ratio" validate:"gtfield=MinAspectRatio"`
	EnableDetectionClustering bool       `json:"enable_detection_clustering"`
	ClusteringDistance        float64    `json:"clustering_distance" validate:"min=0"`
	EnableColorExclusion      bool       `json:"enable_color_exclusion"`
	ExcludedHueRanges         []HueRange `json:"excluded_hue_ranges" validate:"dive"`

	// Processing region. Detections whose centroid falls outside it are
	// dropped. A positive FrameBufferPixels excludes a border of that width
	// (in source pixels); MaskImagePath names a grayscale image whose white
	// pixels mark the region. Both combine with AND.
	MaskEnabled       bool   `json:"mask_enabled"`
	FrameBufferPixels int    `json:"frame_buffer_pixels" validate:"min=0"`
	MaskImagePath     string `json:"mask_image_path"`
	ShowMaskOverlay   bool   `json:"show_mask_overlay"`

	// Rendering
	ShowDetections        bool        `json:"show_detections"`
	MaxDetectionsToRender int         `json:"max_detections_to_render" validate:"min=0"`
	RenderShape           RenderShape `json:"render_shape" validate:"oneof=box circle dot off"`
	RenderText            bool        `json:"render_text"`
	RenderContours        bool        `json:"render_contours"`
	RenderAtProcessingRes bool        `json:"render_at_processing_res"`
	ShowTimingOverlay     bool        `json:"show_timing_overlay"`
	// UseDetectionColor draws color detections in a vivid version of their
	// dominant color instead of the per-type color.
	UseDetectionColor bool `json:"use_detection_color_for_rendering"`
}

// MaxDetectionsPerDetector is the early-stop limit handed to the detectors:
// twice the render limit, or 0 (unlimited) when rendering is unlimited.
func (c DetectionConfig) MaxDetectionsPerDetector() int {
	if c.MaxDetectionsToRender <= 0 {
		return 0
	}
	return c.MaxDetectionsToRender * 2
}

// Clone returns a deep copy so slices are never shared between snapshots.
func (c DetectionConfig) Clone() DetectionConfig {
	if c.ExcludedHueRanges != nil {
		ranges := make([]HueRange, len(c.ExcludedHueRanges))
		copy(ranges, c.ExcludedHueRanges)
		c.ExcludedHueRanges = ranges
	}
	return c
}
