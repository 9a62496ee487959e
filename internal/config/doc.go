// Package config provides configuration structures and utilities for publiccrawler.
// It defines the crawl limits, politeness settings, storage selection and
// API options, together with their defaults and validation rules.
//
// Values are resolved in three layers: NewConfig defaults, an optional YAML
// file (see FindConfigFile and LoadConfigFile), and finally CLI flags.
package config
