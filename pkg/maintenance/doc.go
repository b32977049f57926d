// Package maintenance schedules the gateway's background housekeeping
// jobs on cron expressions: reaping idle rate-limit buckets, sweeping
// expired cache entries, and pruning aged access log records.
package maintenance
