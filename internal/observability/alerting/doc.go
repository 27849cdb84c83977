// Package alerting fans terminal proof job failures out to notification channels.
package alerting
