// Package flagx contains helpers for sharing os.Args between several
// independent flag sets.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs keeps only the flags named in allowed (e.g. "-c", "-config")
// together with their values, so a FlagSet can parse its own subset of the
// command line without failing on flags owned by someone else.
//
// Both "-f value" and "-f=value" forms are understood. A value is taken from
// the next argument only when that argument does not itself start with '-'.
func FilterArgs(args []string, allowed []string) []string {
	keep := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		keep[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if keep[name] {
				out = append(out, arg)
			}
			continue
		}

		if !keep[arg] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// JsonConfigFlags returns the config file path given by -c or -config in
// args, or an empty string when neither is present.
func JsonConfigFlags(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
