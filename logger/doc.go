// Package logger builds the zap logger shared by every codegrader component.
//
// Entries are written to stderr so that the MCP stdio transport owns stdout.
// The application logger carries the service name, the MCP transport and the
// sandbox backend as fields, so entries from several deployments can be told
// apart once aggregated.
//
// Usage:
//
//	log, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	log.Info("submission graded", zap.Int("score", report.Score))
package logger
