package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0" validate:"required"`
	Port                 int           `env:"PORT,default=5000" validate:"min=1,max=65535"`
	GrpcPort             int           `env:"GRPC_PORT,default=0" validate:"min=0,max=65535"`
	DebugPort            int           `env:"DEBUG_PORT,default=0" validate:"min=0,max=65535"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"required"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024" validate:"min=1"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=1"`
	DispatchTimeout      time.Duration `env:"DISPATCH_TIMEOUT,default=2s" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s" validate:"gt=0"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=25s" validate:"gt=0"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=10s" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=4096" validate:"min=1"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*" validate:"required"`
	ErrorAcks            bool          `env:"ERROR_ACKS,default=false"`
	MessageLogPath       string        `env:"MESSAGE_LOG_PATH"`
}

// Validate checks the bounds go-env cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.Port {
		return fmt.Errorf("GRPC_PORT and PORT must differ, both are %d", c.Port)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas. "*" allows every origin.
func (c Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(origin string, _ int) string {
		return strings.TrimSpace(origin)
	})
	return lo.Compact(origins)
}
