// Package extract turns downloaded document payloads into plain text and
// embedded images for the sync pipeline.
package extract
