package main

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	apiAddr   string
	usersFile string

	jwtSecret string
	jwtTTL    time.Duration

	verifyURL     string
	verifyToken   string
	verifyTimeout time.Duration

	sweepInterval time.Duration
	pollInterval  time.Duration
}

func loadConfig(filename string) (*AppConfig, error) {
	viper.SetConfigFile(filename)

	viper.SetDefault("api_addr", ":8080")
	viper.SetDefault("db", "moim.db")
	viper.SetDefault("users_file", "users.yml")

	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.ttl", time.Hour*24)

	viper.SetDefault("verify.url", "http://localhost:9090")
	viper.SetDefault("verify.token", "")
	viper.SetDefault("verify.timeout", time.Second*10)

	viper.SetDefault("sweep_interval", time.Minute)
	viper.SetDefault("poll_interval", time.Second*30)

	// a missing file is fine, the defaults cover it
	if err := viper.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return &AppConfig{
		apiAddr:       viper.GetString("api_addr"),
		usersFile:     viper.GetString("users_file"),
		jwtSecret:     viper.GetString("jwt.secret"),
		jwtTTL:        viper.GetDuration("jwt.ttl"),
		verifyURL:     viper.GetString("verify.url"),
		verifyToken:   viper.GetString("verify.token"),
		verifyTimeout: viper.GetDuration("verify.timeout"),
		sweepInterval: viper.GetDuration("sweep_interval"),
		pollInterval:  viper.GetDuration("poll_interval"),
	}, nil
}
