package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		FrontendBaseURL  string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		API      APIConfig
		Capture  CaptureConfig
		Encoding EncodingConfig
		Media    MediaConfig
	}

	ServerConfig struct {
		Host               string
		Addr               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		ReviewerEmails     []string
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	// APIConfig is what the learner client needs to reach the grading service.
	APIConfig struct {
		BaseURL   string
		UploadURL string
		Token     string
		Timeout   time.Duration
	}

	CaptureConfig struct {
		MaxDuration      time.Duration
		SampleRate       int
		Channels         int
		EchoCancellation bool
		NoiseSuppression bool
		AutoGainControl  bool
		FFmpegPath       string
		FFplayPath       string
		InputFormat      string // avfoundation | pulse | alsa | dshow
		InputDevice      string
		ChunkInterval    time.Duration
	}

	EncodingConfig struct {
		Bitrate int    // kbps
		Downmix string // first | average
		Verify  bool
	}

	MediaConfig struct {
		Dir     string
		BaseURL string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = conf.AppName
	}
	return *addr
}

// NewConfig loads the configuration from defaults, an optional config file,
// the `config/.env.<env>` dotenv file and finally the environment.
func NewConfig(configFile ...string) *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	if len(configFile) > 0 && configFile[0] != "" {
		v.SetConfigFile(configFile[0])
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("config.ReadInConfig(%s): %v", configFile[0], err)
		}
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Addr:               v.GetString("server.addr"),
			DebugHost:          v.GetString("server.debugHost"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			ReviewerEmails:     splitList(v.GetString("server.reviewerEmails")),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			Path:          v.GetString("database.path"),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(v.GetString("api.baseURL"), "/"),
			UploadURL: v.GetString("api.uploadURL"),
			Token:     v.GetString("api.token"),
			Timeout:   v.GetDuration("api.timeout"),
		},
		Capture: CaptureConfig{
			MaxDuration:      v.GetDuration("capture.maxDuration"),
			SampleRate:       v.GetInt("capture.sampleRate"),
			Channels:         v.GetInt("capture.channels"),
			EchoCancellation: v.GetBool("capture.echoCancellation"),
			NoiseSuppression: v.GetBool("capture.noiseSuppression"),
			AutoGainControl:  v.GetBool("capture.autoGainControl"),
			FFmpegPath:       v.GetString("capture.ffmpegPath"),
			FFplayPath:       v.GetString("capture.ffplayPath"),
			InputFormat:      v.GetString("capture.inputFormat"),
			InputDevice:      v.GetString("capture.inputDevice"),
			ChunkInterval:    v.GetDuration("capture.chunkInterval"),
		},
		Encoding: EncodingConfig{
			Bitrate: v.GetInt("encoding.bitrate"),
			Downmix: v.GetString("encoding.downmix"),
			Verify:  v.GetBool("encoding.verify"),
		},
		Media: MediaConfig{
			Dir:     v.GetString("media.dir"),
			BaseURL: strings.TrimRight(v.GetString("media.baseURL"), "/"),
		},
	}
	if conf.API.UploadURL == "" {
		conf.API.UploadURL = conf.API.BaseURL + "/api/uploads"
	}
	return conf
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "LingoLab")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.reviewerEmails", "")

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "lingolab")
	v.SetDefault("database.user", "lingolab")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.path", "lingolab.sqlite")

	v.SetDefault("api.baseURL", "http://localhost:8000")
	v.SetDefault("api.uploadURL", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("capture.maxDuration", 120*time.Second)
	v.SetDefault("capture.sampleRate", 44100)
	v.SetDefault("capture.channels", 1)
	v.SetDefault("capture.echoCancellation", true)
	v.SetDefault("capture.noiseSuppression", true)
	v.SetDefault("capture.autoGainControl", true)
	v.SetDefault("capture.ffmpegPath", "ffmpeg")
	v.SetDefault("capture.ffplayPath", "ffplay")
	v.SetDefault("capture.inputFormat", defaultInputFormat())
	v.SetDefault("capture.inputDevice", "")
	v.SetDefault("capture.chunkInterval", 250*time.Millisecond)

	v.SetDefault("encoding.bitrate", 128)
	v.SetDefault("encoding.downmix", "first")
	v.SetDefault("encoding.verify", false)

	v.SetDefault("media.dir", "media")
	v.SetDefault("media.baseURL", "http://localhost:8000/media")
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func defaultInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s[%s] build=%s debug=%t", conf.AppName, conf.Env, conf.Build, conf.Debug)
}
