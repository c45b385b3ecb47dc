package core

import (
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		SendgridApiKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		// EmailDomain restricts member e-mail addresses to one domain. Empty allows any domain.
		EmailDomain string
		// ProfileExtended adds faculty & student ID to the profile fields members can change.
		ProfileExtended bool

		Server   ServerConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugAddress              string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the uppercased env name, eg. PROD_SECRETKEY or DEV_DB_NAME.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Klubhaus")
	v.SetDefault("secretKey", "2c#k-v)ipb8+n1=dz&uqxw2(h!a)#*r9(#yg4h^$cegm2xmf")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Klubhaus <noreply@localhost>")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("emailDomain", "st.ovgu.de")
	v.SetDefault("profileExtended", true)
	v.SetDefault("testMode", false)

	v.SetDefault("server_host", "localhost")
	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debugAddress", ":4000")
	v.SetDefault("server_readTimeout", 5*time.Second)
	v.SetDefault("server_writeTimeout", 5*time.Second)
	v.SetDefault("server_shutdownTimeout", 5*time.Second)
	v.SetDefault("server_jwtExpirationDelta", 15*time.Minute)
	v.SetDefault("server_jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "klubhaus")
	v.SetDefault("db_user", "klubhaus")
	v.SetDefault("db_password", "")
	v.SetDefault("db_adminUser", "postgres")
	v.SetDefault("db_adminPassword", "")
	v.SetDefault("db_disableTLS", true)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing defaultFromEmail")
	}

	conf := &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *from,
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		EmailDomain:               v.GetString("emailDomain"),
		ProfileExtended:           v.GetBool("profileExtended"),
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Address:                   v.GetString("server_address"),
			DebugAddress:              v.GetString("server_debugAddress"),
			ReadTimeout:               v.GetDuration("server_readTimeout"),
			WriteTimeout:              v.GetDuration("server_writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server_jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetString("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_adminUser"),
			AdminPassword: v.GetString("db_adminPassword"),
			DisableTLS:    v.GetBool("db_disableTLS"),
		},
	}
	if !conf.Debug && !conf.TestMode && conf.SendgridApiKey == "" {
		return nil, errors.New("sendgridApiKey is required outside of debug mode")
	}
	return conf, nil
}
