// Package manifest defines the resolved manifest document and the error
// taxonomy shared by the resolution tiers.
//
// Ownership boundary:
// - document shape and provenance tagging
// - scope normalisation
// - error kinds surfaced by cache, remote, fallback and resolver
//
// Manifest does not perform any I/O.
package manifest
