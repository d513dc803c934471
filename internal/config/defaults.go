package config

// Ordering policy values for Pipeline.Ordering.
const (
	OrderingHybrid     = "hybrid"
	OrderingSequential = "sequential"
)

const (
	defaultOutputDir        = "~/.local/share/storybookd/outputs"
	defaultLogDir           = "~/.local/share/storybookd/logs"
	defaultAPIBind          = "127.0.0.1:8000"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultStoryBaseURL     = "http://127.0.0.1:8080"
	defaultStoryMaxAttempts = 3
	defaultStoryTimeout     = 300
	defaultImagesBaseURL    = "http://127.0.0.1:8188"
	defaultImagesTimeout    = 300
	defaultImagesPoll       = 2
	defaultTTSBaseURL       = "http://127.0.0.1:8189"
	defaultTTSVoice         = "M2"
	defaultTTSLanguage      = "ko"
	defaultTTSSpeed         = 1.05
	defaultTTSTimeout       = 120
	defaultSTTBaseURL       = "http://127.0.0.1:8190"
	defaultSTTModel         = "medium"
	defaultSTTLanguage      = "ko-KR"
	defaultSTTTimeout       = 60
	defaultAudioWorkers     = 5
	defaultKeepaliveSeconds = 30
	defaultMaxRuns          = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Story: Story{
			BaseURL:        defaultStoryBaseURL,
			MaxAttempts:    defaultStoryMaxAttempts,
			TimeoutSeconds: defaultStoryTimeout,
		},
		Images: Images{
			BaseURL:        defaultImagesBaseURL,
			TimeoutSeconds: defaultImagesTimeout,
			PollSeconds:    defaultImagesPoll,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Voice:          defaultTTSVoice,
			Language:       defaultTTSLanguage,
			Speed:          defaultTTSSpeed,
			TimeoutSeconds: defaultTTSTimeout,
		},
		STT: STT{
			BaseURL:        defaultSTTBaseURL,
			Model:          defaultSTTModel,
			Language:       defaultSTTLanguage,
			TimeoutSeconds: defaultSTTTimeout,
		},
		Pipeline: Pipeline{
			Ordering:         OrderingHybrid,
			AudioWorkers:     defaultAudioWorkers,
			KeepaliveSeconds: defaultKeepaliveSeconds,
		},
		Retention: Retention{
			MaxRuns: defaultMaxRuns,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
