// Package substitute implements the eight %input*%/%output*% placeholders
// (spec §3) that Expansion applies to a task's extension, command, argument
// and working-directory templates.
package substitute

import (
	"path/filepath"
	"strings"
)

// Vars holds the resolved value of each half of a substitution pair. Either
// half may be left at its zero value if that side isn't known yet (e.g.
// Output is empty while expanding the extension template, which only needs
// Input).
type Vars struct {
	Input  string // absolute path to the input file
	Output string // absolute path to the output file
}

// parts splits an absolute file path into dir/file/ext/base, per spec §3:
// dir is the parent directory, file is the full path, ext is the suffix
// after the last dot (without the dot), base is the (base) name with the
// suffix removed — e.g. "/tmp/photo.png" yields base "photo", used by
// Expansion to build "<output dir>/<base>.<ext>".
func parts(path string) (dir, file, ext, base string) {
	if path == "" {
		return "", "", "", ""
	}
	dir = filepath.Dir(path)
	file = path
	name := filepath.Base(path)
	if i := strings.LastIndex(name, "."); i > 0 {
		ext = name[i+1:]
		base = name[:i]
	} else {
		base = name
	}
	return dir, file, ext, base
}

// Expand replaces every %input*%/%output*% placeholder present in s with
// its resolved value from v, and returns the result.
func Expand(s string, v Vars) string {
	inDir, inFile, inExt, inBase := parts(v.Input)
	outDir, outFile, outExt, outBase := parts(v.Output)

	r := strings.NewReplacer(
		"%inputdir%", inDir,
		"%inputfile%", inFile,
		"%inputext%", inExt,
		"%inputbase%", inBase,
		"%outputdir%", outDir,
		"%outputfile%", outFile,
		"%outputext%", outExt,
		"%outputbase%", outBase,
	)
	return r.Replace(s)
}

// Tokenize splits an already-substituted argument template into argument
// tokens by splitting on ASCII space. This is a deliberate, simple rule —
// embedded spaces within a single argument are not supported (spec §9).
func Tokenize(s string) []string {
	fields := strings.Split(s, " ")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}
