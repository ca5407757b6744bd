package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "CALAUDIT_"

type Application struct {
	Host     string   `koanf:"host"`
	Google   Google   `koanf:"google"`
	Database Database `koanf:"db"`
	Sync     Sync     `koanf:"sync"`
	Metrics  Metrics  `koanf:"metrics"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

type Sync struct {
	// PageSize is the maxResults value sent with every listing request.
	PageSize int `koanf:"pagesize"`
	// RequestTimeout bounds a single provider call (one page, one watch, one stop).
	RequestTimeout time.Duration `koanf:"requesttimeout"`
	// WebhookUrl is the public address the provider posts change notifications to.
	// Push channels are not created when it is empty.
	WebhookUrl         string `koanf:"webhookurl"`
	ChannelRenewalCron string `koanf:"channelrenewalcron"`
	// ChannelRenewalLead renews channels expiring within this window of a scheduled run.
	// Keep it above the cron interval so no channel lapses between runs.
	ChannelRenewalLead time.Duration `koanf:"channelrenewallead"`
}

type Metrics struct {
	Enabled bool `koanf:"enabled"`
}

func Defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "calaudit",
			Pass:   "",
			Name:   "calaudit",
			Schema: "calaudit",
		},
		Sync: Sync{
			PageSize:           2500,
			RequestTimeout:     30 * time.Second,
			ChannelRenewalCron: "@every 6h",
			ChannelRenewalLead: 12 * time.Hour,
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("unable to load .env file: %v", err)
	}

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
