package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAMLLoader is a kong.ConfigurationLoader reading flag values from YAML.
// A flag such as --postgres-max-conns is found under "postgres-max-conns",
// "postgres_max_conns" or nested as postgres: {max-conns: ...}.
func YAMLLoader(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse yaml config: %w", err)
	}

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		raw, ok := lookup(values, flag.Name)
		if !ok {
			return nil, nil
		}
		return scalar(raw)
	}

	return f, nil
}

func lookup(values map[string]any, name string) (any, bool) {
	for _, key := range []string{name, strings.ReplaceAll(name, "-", "_")} {
		if raw, ok := values[key]; ok {
			return raw, true
		}
	}

	section, rest, found := strings.Cut(name, "-")
	if !found {
		return nil, false
	}

	nested, ok := values[section].(map[string]any)
	if !ok {
		return nil, false
	}

	return lookup(nested, rest)
}

// scalar renders YAML values as strings so kong's own mappers parse them.
func scalar(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return nil, fmt.Errorf("unexpected mapping value")
	default:
		return fmt.Sprint(v), nil
	}
}
