package service

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// fallbackFilename is used when nothing survives sanitising.
const fallbackFilename = "file"

// MaxSecureFilenameBytes caps a sanitised name. With the 33-byte prefix
// added by UniqueFilename the stored name stays well under the 255-byte
// limit of common filesystems.
const MaxSecureFilenameBytes = 200

// maxExtensionBytes is the longest extension kept when a name is shortened.
const maxExtensionBytes = 16

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// windowsDeviceNames can't be used as file names on Windows even with an
// extension, so they get an underscore prefix.
var windowsDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SecureFilename reduces a client-supplied file name to a safe single path
// element made of ASCII letters, digits, '_', '.' and '-'.
//
// Accented letters are decomposed and keep their base letter ("café" →
// "cafe"), separators turn into spaces, runs of whitespace become one '_',
// and leading or trailing '.' and '_' are stripped so the result is never
// hidden, "." or "..". Names longer than MaxSecureFilenameBytes are cut
// from the middle so the extension survives. The result may be empty.
//
//	SecureFilename("My cool movie.mov")     == "My_cool_movie.mov"
//	SecureFilename("../../../etc/passwd")   == "etc_passwd"
//	SecureFilename("i contain cool ümläuts.txt") == "i_contain_cool_umlauts.txt"
func SecureFilename(name string) string {
	// NFKD splits "ü" into "u" + combining diaeresis; dropping non-ASCII
	// afterwards keeps the "u".
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		if r == '/' || r == '\\' {
			return ' '
		}
		return r
	}, name)

	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	name = shortenFilename(name)

	if name != "" && windowsDeviceNames[strings.ToUpper(strings.SplitN(name, ".", 2)[0])] {
		name = "_" + name
	}
	return name
}

// shortenFilename trims the stem of an over-long name, keeping a short
// extension. name is already ASCII, so byte slicing is safe.
func shortenFilename(name string) string {
	if len(name) <= MaxSecureFilenameBytes {
		return name
	}
	ext := path.Ext(name)
	if len(ext) > maxExtensionBytes {
		ext = ""
	}
	stem := strings.TrimRight(name[:MaxSecureFilenameBytes-len(ext)], "._")
	return stem + ext
}

// UniqueFilename returns the storage name for an upload: 32 random hex
// digits, a dash, then the sanitised original name.
func UniqueFilename(original string) string {
	safe := SecureFilename(original)
	if safe == "" {
		safe = fallbackFilename
	}
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "") + "-" + safe
}
