package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"30"`
	} `envPrefix:"SERVER_"`
	Log struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"json"` // json 或 console
	} `envPrefix:"LOG_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	JWT struct {
		Secret string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Email struct {
		UserDomain string `env:"USER_DOMAIN,required"`
		SMTP       struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		Queue          string `env:"QUEUE" envDefault:"email_queue"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD,required"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
	} `envPrefix:"REDIS_"`
	Engine struct {
		MaxConcurrentRuns int `env:"MAX_CONCURRENT_RUNS" envDefault:"2"`
		Workers           int `env:"WORKERS" envDefault:"0"`               // 0 表示 GOMAXPROCS
		DefaultTimeBudget int `env:"DEFAULT_TIME_BUDGET" envDefault:"300"` // 秒，0 表示不限制
		TaskRetention     int `env:"TASK_RETENTION" envDefault:"1800"`     // 秒
		ProgressTTL       int `env:"PROGRESS_TTL" envDefault:"86400"`      // 秒
	} `envPrefix:"ENGINE_"`
	Export struct {
		FontPath string `env:"FONT_PATH"` // 支持中文的 TTF 字体，为空时使用内置的 Arial
	} `envPrefix:"EXPORT_"`
	Calendar struct {
		Days         []int32 `env:"DAYS" envDefault:"1,2,3,4,5,6" envSeparator:","`
		BlockMinutes int32   `env:"BLOCK_MINUTES" envDefault:"60"`
		Morning      struct {
			Start string `env:"START" envDefault:"08:00"`
			End   string `env:"END" envDefault:"12:00"`
		} `envPrefix:"MORNING_"`
		Afternoon struct {
			Start string `env:"START" envDefault:"14:00"`
			End   string `env:"END" envDefault:"18:00"`
		} `envPrefix:"AFTERNOON_"`
		Evening struct {
			Start string `env:"START" envDefault:"19:00"`
			End   string `env:"END" envDefault:"22:00"`
		} `envPrefix:"EVENING_"`
	} `envPrefix:"CALENDAR_"`
}

func LoadConfig() (*Config, error) {
	// .env 文件是可选的
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	return cfg, nil
}

// CalendarConfig 返回排班使用的上课日与时段定义
// 某个时段的开始或结束时间为空时，该时段不参与排课
func (cfg *Config) CalendarConfig() domain.CalendarConfig {
	cal := domain.CalendarConfig{
		Days:   make([]domain.Day, 0, len(cfg.Calendar.Days)),
		Shifts: make([]domain.ShiftDefinition, 0, 3),
	}
	for _, d := range cfg.Calendar.Days {
		cal.Days = append(cal.Days, domain.Day(d))
	}

	shifts := []struct {
		shift      domain.Shift
		start, end string
	}{
		{domain.ShiftMorning, cfg.Calendar.Morning.Start, cfg.Calendar.Morning.End},
		{domain.ShiftAfternoon, cfg.Calendar.Afternoon.Start, cfg.Calendar.Afternoon.End},
		{domain.ShiftEvening, cfg.Calendar.Evening.Start, cfg.Calendar.Evening.End},
	}
	for _, s := range shifts {
		if s.start == "" || s.end == "" {
			continue
		}
		cal.Shifts = append(cal.Shifts, domain.ShiftDefinition{
			Shift:        s.shift,
			StartTime:    s.start,
			EndTime:      s.end,
			BlockMinutes: cfg.Calendar.BlockMinutes,
		})
	}

	return cal
}

func (cfg *Config) DefaultTimeBudget() time.Duration {
	return time.Duration(cfg.Engine.DefaultTimeBudget) * time.Second
}
