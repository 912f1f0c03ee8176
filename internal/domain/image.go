package domain

import "strings"

// ImageRepository returns the image reference without tag or digest,
// e.g. "ghcr.io/acme/notes:1.2" -> "ghcr.io/acme/notes".
func ImageRepository(ref string) string {
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	slash := strings.LastIndex(ref, "/")
	if colon := strings.LastIndex(ref, ":"); colon > slash {
		ref = ref[:colon]
	}
	return ref
}

// ImageBaseName returns the last path segment of an image reference without
// tag or digest, e.g. "ghcr.io/acme/notes-svc:1.2" -> "notes-svc".
func ImageBaseName(ref string) string {
	repo := ImageRepository(ref)
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		repo = repo[i+1:]
	}
	return repo
}
