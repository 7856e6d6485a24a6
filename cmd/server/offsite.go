package main

import (
	"log"

	"questsync.dev/internal/persistence/offsite"
	"questsync.dev/internal/platform/config"
)

// openOffsite returns nil when no offsite endpoint is configured.
func openOffsite(env config.OffsiteEnv, dataDir string, logger *log.Logger) (*offsite.Uploader, error) {
	if !env.Enabled() {
		return nil, nil
	}
	c, err := offsite.NewClient(offsite.Config{
		Endpoint:        env.Endpoint,
		Bucket:          env.Bucket,
		Region:          env.Region,
		AccessKeyID:     env.AccessKey,
		SecretAccessKey: env.SecretKey,
		Prefix:          env.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return offsite.NewUploader(c, dataDir, 256, logger), nil
}
