// Package mailer is the notification plugin: an email-sending LLM tool, a
// host memory watchdog, a Napcat gateway liveness watchdog, an optional
// daily digest mail and a few chat commands over the same machinery.
package mailer

import (
	"fmt"
	"time"

	"mailbot/internal/config"
	"mailbot/internal/mail"
	"mailbot/internal/napcat"
	"mailbot/internal/watchdog"
)

// Config is the plugin's config block. All durations are Go duration
// strings.
type Config struct {
	SMTP   SMTPConfig   `json:"smtp"`
	Memory MemoryConfig `json:"memory_alerts"`
	Napcat NapcatConfig `json:"napcat"`
	Digest DigestConfig `json:"digest"`

	// TemplateDir optionally overrides the embedded alert templates.
	TemplateDir string `json:"template_dir,omitempty"`
}

type SMTPConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	UseSSL      bool   `json:"use_ssl"`
	UseSTARTTLS bool   `json:"use_starttls"`
	Debug       bool   `json:"debug"`
	Timeout     string `json:"timeout,omitempty"`

	FromAddress  string   `json:"from_address"`
	FromName     string   `json:"from_name,omitempty"`
	AllowDomains []string `json:"allow_domains,omitempty"`
	DryRun       bool     `json:"dry_run"`
	SendInterval string   `json:"send_interval,omitempty"`
}

type MemoryConfig struct {
	Enabled          bool     `json:"enabled"`
	Interval         string   `json:"interval,omitempty"`
	ThresholdPercent float64  `json:"threshold_percent,omitempty"`
	Cooldown         string   `json:"cooldown,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
}

type NapcatConfig struct {
	Enabled       bool   `json:"enabled"`
	BaseURL       string `json:"base_url,omitempty"`
	Token         string `json:"token,omitempty"`
	Credential    string `json:"credential,omitempty"`
	UIN           string `json:"uin,omitempty"`
	AllowInsecure bool   `json:"allow_insecure"`

	Interval         string   `json:"interval,omitempty"`
	Cooldown         string   `json:"cooldown,omitempty"`
	FailureThreshold int      `json:"failure_threshold,omitempty"`
	Recipients       []string `json:"recipients,omitempty"`
}

type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule accepts a cron spec, "cron:<spec>" or "interval:<dur>"; an
	// empty value means daily at 08:00.
	Schedule   string   `json:"schedule,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// senderConfig translates the raw SMTP block into the notifier's config.
func (c *Config) senderConfig() (mail.SenderConfig, error) {
	timeout, err := config.ParseDurationField("smtp.timeout", c.SMTP.Timeout)
	if err != nil {
		return mail.SenderConfig{}, err
	}
	interval, err := config.ParseDurationField("smtp.send_interval", c.SMTP.SendInterval)
	if err != nil {
		return mail.SenderConfig{}, err
	}
	return mail.SenderConfig{
		Transport: mail.TransportConfig{
			Host:        c.SMTP.Host,
			Port:        c.SMTP.Port,
			Username:    c.SMTP.Username,
			Password:    c.SMTP.Password,
			UseSSL:      c.SMTP.UseSSL,
			UseSTARTTLS: c.SMTP.UseSTARTTLS,
			Debug:       c.SMTP.Debug,
			Timeout:     timeout,
		},
		From:         c.SMTP.FromAddress,
		FromName:     c.SMTP.FromName,
		AllowDomains: c.SMTP.AllowDomains,
		DryRun:       c.SMTP.DryRun,
		SendInterval: interval,
	}, nil
}

func (c *Config) memoryConfig() (watchdog.MemoryConfig, error) {
	interval, err := config.ParseDurationOrDefault("memory_alerts.interval", c.Memory.Interval, 5*time.Minute)
	if err != nil {
		return watchdog.MemoryConfig{}, err
	}
	cooldown, err := config.ParseDurationOrDefault("memory_alerts.cooldown", c.Memory.Cooldown, 30*time.Minute)
	if err != nil {
		return watchdog.MemoryConfig{}, err
	}
	return watchdog.MemoryConfig{
		Interval:         interval,
		ThresholdPercent: c.Memory.ThresholdPercent,
		Cooldown:         cooldown,
		Recipients:       c.Memory.Recipients,
	}, nil
}

func (c *Config) livenessConfig() (watchdog.LivenessConfig, error) {
	interval, err := config.ParseDurationOrDefault("napcat.interval", c.Napcat.Interval, time.Minute)
	if err != nil {
		return watchdog.LivenessConfig{}, err
	}
	cooldown, err := config.ParseDurationOrDefault("napcat.cooldown", c.Napcat.Cooldown, 30*time.Minute)
	if err != nil {
		return watchdog.LivenessConfig{}, err
	}
	return watchdog.LivenessConfig{
		Interval:         interval,
		Cooldown:         cooldown,
		FailureThreshold: c.Napcat.FailureThreshold,
		Recipients:       c.Napcat.Recipients,
		UIN:              c.Napcat.UIN,
	}, nil
}

func (c *Config) napcatConfig() napcat.Config {
	return napcat.Config{
		BaseURL:       c.Napcat.BaseURL,
		Token:         c.Napcat.Token,
		Credential:    c.Napcat.Credential,
		AllowInsecure: c.Napcat.AllowInsecure,
	}
}

func (c *Config) validate() error {
	if c.Napcat.Enabled && c.Napcat.BaseURL == "" {
		return fmt.Errorf("napcat.base_url is required when napcat watchdog is enabled")
	}
	if c.Memory.Enabled && len(c.Memory.Recipients) == 0 {
		return fmt.Errorf("memory_alerts.recipients is required when memory alerts are enabled")
	}
	if c.Napcat.Enabled && len(c.Napcat.Recipients) == 0 {
		return fmt.Errorf("napcat.recipients is required when the napcat watchdog is enabled")
	}
	if c.Digest.Enabled && len(c.Digest.Recipients) == 0 {
		return fmt.Errorf("digest.recipients is required when the digest is enabled")
	}
	return nil
}
