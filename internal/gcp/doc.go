// Package gcp contains internal types and functions for interacting with
// Google Cloud Platform services, specifically Cloud Logging.
//
// This package is not intended for direct use by consumers of the
// gcpappender library. It owns the Cloud Logging client lifecycle behind a
// batch transport, validates and normalizes log IDs, detects the monitored
// resource of the running platform from the metadata server and environment,
// and encodes entries as the structured JSON lines the logging agents ingest.
package gcp
