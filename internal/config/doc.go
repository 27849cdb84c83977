// Package config loads the JSON configuration of the signald daemon.
package config
