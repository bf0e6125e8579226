// Package delivery publishes finished artifacts to S3-compatible object storage.
package delivery
