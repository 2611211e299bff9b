package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SupportAudioExt checks if audio ext is supported.
// mp4 is accepted - the DSP collaborator extracts the audio track
func SupportAudioExt(ext string) bool {
	switch ext {
	case ".wav", ".mp3", ".flac", ".m4a", ".mp4":
		return true
	}
	return false
}

// MakeFileName joins id and file name into a storage object path
func MakeFileName(id, name string) string {
	return id + "/raw/" + name
}

// Storage prefixes of the pipeline stages. Every stage reads its input
// prefix and overwrites its output prefix, so a re-run is safe
func RawPrefix(id string) string      { return id + "/raw/" }
func VocalsPrefix(id string) string   { return id + "/vocals/" }
func DenoisedPrefix(id string) string { return id + "/denoised/" }
func ClipsPrefix(id string) string    { return id + "/clips/" }

// MakeValidateFileName sanitizes a user provided file name and
// returns the storage object path
func MakeValidateFileName(id, name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == ".." || strings.ContainsAny(base, "|") {
		return "", fmt.Errorf("wrong file name '%s'", name)
	}
	if id == "" {
		return base, nil
	}
	return MakeFileName(id, base), nil
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}
