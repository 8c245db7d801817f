package conf

type Mode string

const (
	ModeDev  Mode = "dev"  // 仅控制台输出
	ModeProd Mode = "prod" // 控制台 + 滚动文件
)

type Logger struct {
	Mode       Mode     `json:"mode" validate:"omitempty,oneof=dev prod"`
	AppName    string   `json:"appName"`
	Level      string   `json:"level" validate:"omitempty,oneof=debug info warn error fatal"`
	Directory  string   `json:"directory"`
	FormatJson bool     `json:"formatJson"`
	ErrorFile  bool     `json:"errorFile"`
	Sensitive  []string `json:"sensitive"`
	Rotate     *Rotate  `json:"rotate"`
}

type Rotate struct {
	MaxSizeMB  int32 `json:"maxSizeMB" validate:"gte=0"`
	MaxBackups int32 `json:"maxBackups" validate:"gte=0"`
	MaxAgeDays int32 `json:"maxAgeDays" validate:"gte=0"`
	Compress   bool  `json:"compress"`
	LocalTime  bool  `json:"localTime"`
}

func DefaultConfig(opts ...Option) *Logger {
	c := &Logger{
		Mode:      ModeDev,
		AppName:   "app",
		Level:     "debug",
		Directory: "./logs",
		Sensitive: []string{},
		Rotate: &Rotate{
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
			Compress:   true,
			LocalTime:  true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*Logger)

func WithAppName(appName string) Option {
	return func(c *Logger) { c.AppName = appName }
}

func WithProduction() Option {
	return func(c *Logger) {
		c.Mode = ModeProd
		c.Level = "info"
	}
}

func WithLevel(level string) Option {
	return func(c *Logger) { c.Level = level }
}

func WithDirectory(dir string) Option {
	return func(c *Logger) { c.Directory = dir }
}

func WithErrorFile(enabled bool) Option {
	return func(c *Logger) { c.ErrorFile = enabled }
}

func WithSensitive(keys []string) Option {
	return func(c *Logger) { c.Sensitive = keys }
}
