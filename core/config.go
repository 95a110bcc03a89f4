package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string
		RollbarToken string
		WorkDir      string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Scheduler SchedulerConfig
		Mastery   MasteryConfig
		Deadline  DeadlineConfig
		Store     StoreConfig
		Catalog   CatalogConfig
	}

	ServerConfig struct {
		Address            string
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine     string // memory | postgres | sqlite3
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
		Path       string // sqlite3 only
	}

	RedisConfig struct {
		Addr    string
		Channel string
	}

	// SchedulerConfig holds the spacing parameters of revision rescheduling.
	SchedulerConfig struct {
		DefaultEase     float64
		EaseFloor       float64
		EaseCeiling     float64
		EaseBonus       float64
		EasePenalty     float64
		InitialInterval int
		SkipInterval    int
		MaxIntervalDays int
		DefaultFirstDue time.Duration
	}

	MasteryConfig struct {
		GainRate      float64
		MinGain       int
		DecayRate     float64 // percent of current score removed per decay run; 0 disables decay
		DecayInterval time.Duration
	}

	DeadlineConfig struct {
		Enabled      bool
		ScanInterval time.Duration
		Lookahead    time.Duration
		Grace        time.Duration
	}

	StoreConfig struct {
		MaxRetries int
	}

	// CatalogConfig names an optional catalog file imported when the API starts.
	CatalogConfig struct {
		SeedFile  string
		SeedSheet string
	}
)

func (dbConf DatabaseConfig) Address() string {
	return net.JoinHostPort(dbConf.Host, strconv.Itoa(dbConf.Port))
}

// NewConfig reads the configuration from the environment.
// ENV selects the environment (DEV by default) and the env prefix; config/.env.<env> is loaded first if it exists.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := fromViper(v)
	conf.Env = env
	conf.WorkDir = workDir
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "SmartEducation")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "smartedu")
	v.SetDefault("database.user", "smartedu")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", filepath.Join("data", "smartedu.db"))

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "smartedu:events")

	v.SetDefault("scheduler.defaultEase", 2.5)
	v.SetDefault("scheduler.easeFloor", 1.3)
	v.SetDefault("scheduler.easeCeiling", 3.0)
	v.SetDefault("scheduler.easeBonus", 0.1)
	v.SetDefault("scheduler.easePenalty", 0.2)
	v.SetDefault("scheduler.initialInterval", 1)
	v.SetDefault("scheduler.skipInterval", 1)
	v.SetDefault("scheduler.maxIntervalDays", 365)
	v.SetDefault("scheduler.defaultFirstDue", 24*time.Hour)

	v.SetDefault("mastery.gainRate", 0.3)
	v.SetDefault("mastery.minGain", 1)
	v.SetDefault("mastery.decayRate", 0.0)
	v.SetDefault("mastery.decayInterval", 24*time.Hour)

	v.SetDefault("deadline.enabled", true)
	v.SetDefault("deadline.scanInterval", 5*time.Minute)
	v.SetDefault("deadline.lookahead", 24*time.Hour)
	v.SetDefault("deadline.grace", time.Hour)

	v.SetDefault("store.maxRetries", 5)

	v.SetDefault("catalog.seedFile", "")
	v.SetDefault("catalog.seedSheet", "")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disableTLS"),
			Path:       v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Addr:    v.GetString("redis.addr"),
			Channel: v.GetString("redis.channel"),
		},
		Scheduler: SchedulerConfig{
			DefaultEase:     v.GetFloat64("scheduler.defaultEase"),
			EaseFloor:       v.GetFloat64("scheduler.easeFloor"),
			EaseCeiling:     v.GetFloat64("scheduler.easeCeiling"),
			EaseBonus:       v.GetFloat64("scheduler.easeBonus"),
			EasePenalty:     v.GetFloat64("scheduler.easePenalty"),
			InitialInterval: v.GetInt("scheduler.initialInterval"),
			SkipInterval:    v.GetInt("scheduler.skipInterval"),
			MaxIntervalDays: v.GetInt("scheduler.maxIntervalDays"),
			DefaultFirstDue: v.GetDuration("scheduler.defaultFirstDue"),
		},
		Mastery: MasteryConfig{
			GainRate:      v.GetFloat64("mastery.gainRate"),
			MinGain:       v.GetInt("mastery.minGain"),
			DecayRate:     v.GetFloat64("mastery.decayRate"),
			DecayInterval: v.GetDuration("mastery.decayInterval"),
		},
		Deadline: DeadlineConfig{
			Enabled:      v.GetBool("deadline.enabled"),
			ScanInterval: v.GetDuration("deadline.scanInterval"),
			Lookahead:    v.GetDuration("deadline.lookahead"),
			Grace:        v.GetDuration("deadline.grace"),
		},
		Store: StoreConfig{
			MaxRetries: v.GetInt("store.maxRetries"),
		},
		Catalog: CatalogConfig{
			SeedFile:  v.GetString("catalog.seedFile"),
			SeedSheet: v.GetString("catalog.seedSheet"),
		},
	}
}

// NewTestConfig returns the defaults with debug output turned off; it never reads the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	conf := fromViper(v)
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	conf.SecretKey = "secret"
	return conf
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s, db %s)", conf.AppName, conf.Env, conf.Build, conf.Database.Engine)
}
