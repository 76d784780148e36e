package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFarm()
	c.normalizeHoudini()
	c.normalizeAdaptor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BundleDir) == "" {
		c.Paths.BundleDir = defaultBundleDir
	}
	if c.Paths.BundleDir, err = expandPath(c.Paths.BundleDir); err != nil {
		return fmt.Errorf("paths.bundle_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFarm() {
	c.Farm.Endpoint = strings.TrimRight(strings.TrimSpace(c.Farm.Endpoint), "/")
	c.Farm.FarmID = strings.TrimSpace(c.Farm.FarmID)
	c.Farm.QueueID = strings.TrimSpace(c.Farm.QueueID)
	c.Farm.StorageProfileID = strings.TrimSpace(c.Farm.StorageProfileID)
	if token, ok := os.LookupEnv("STAGEHAND_FARM_TOKEN"); ok && strings.TrimSpace(c.Farm.AuthToken) == "" {
		c.Farm.AuthToken = strings.TrimSpace(token)
	}
	if c.Farm.RequestTimeout <= 0 {
		c.Farm.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeHoudini() {
	c.Houdini.Version = strings.TrimSpace(c.Houdini.Version)
	c.Houdini.InstallDir = strings.TrimSpace(c.Houdini.InstallDir)
	c.Houdini.Hython = strings.TrimSpace(c.Houdini.Hython)
	c.Houdini.Hotl = strings.TrimSpace(c.Houdini.Hotl)
}

func (c *Config) normalizeAdaptor() {
	if c.Adaptor.ServerStartTimeout <= 0 {
		c.Adaptor.ServerStartTimeout = defaultServerStartTimeout
	}
	if c.Adaptor.ClientStartTimeout <= 0 {
		c.Adaptor.ClientStartTimeout = defaultClientStartTimeout
	}
	if c.Adaptor.ClientEndTimeout <= 0 {
		c.Adaptor.ClientEndTimeout = defaultClientEndTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
