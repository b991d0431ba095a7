package config

// Default returns the configuration the service starts with.
func Default() DetectionConfig {
	return DetectionConfig{
		ProcessingWidth:  1280,
		ProcessingHeight: 720,

		EnableMotion:         true,
		MotionAlgorithm:      MotionMOG2,
		MinDetectionArea:     100,
		MaxDetectionArea:     50000,
		MotionThreshold:      25,
		BlurKernelSize:       5,
		MorphologyKernelSize: 3,
		EnableMorphology:     true,
		BlobMethod:           BlobContour,

		BgHistory:         100,
		BgVarThreshold:    25.0,
		BgDetectShadows:   false,
		KNNDist2Threshold: 400,
		ShadowThreshold:   200,

		EnablePersistenceFilter: false,
		PersistenceFrames:       3,
		PersistenceThreshold:    2,

		PauseOnCameraMovement:   true,
		CameraMovementThreshold: 0.15,

		EnableColorQuantization: false,
		ColorSpace:              ColorSpaceBGR,
		ColorQuantizationBits:   4,
		ColorRarityPercentile:   30,
		ColorMinDetectionArea:   15,
		ColorMaxDetectionArea:   50000,
		HSVMinSaturation:        40,
		LABMinChroma:            10,
		EnableHueExpansion:      false,
		HueExpansionRange:       5,

		EnableFusion: true,
		FusionMode:   FusionUnion,

		EnableTemporalVoting:    true,
		TemporalWindowFrames:    3,
		TemporalThresholdFrames: 2,

		EnableAspectRatioFilter:   true,
		MinAspectRatio:            0.2,
		MaxAspectRatio:            5.0,
		EnableDetectionClustering: false,
		ClusteringDistance:        50,
		EnableColorExclusion:      false,
		ExcludedHueRanges:         []HueRange{},

		MaskEnabled:       false,
		FrameBufferPixels: 50,
		ShowMaskOverlay:   true,

		ShowDetections:        true,
		MaxDetectionsToRender: 20,
		RenderShape:           RenderCircle,
		ShowTimingOverlay:     true,
	}
}
