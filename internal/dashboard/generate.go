package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"astraguard-sim/internal/metrics"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// DatasourceEnv names the variable holding the Grafana datasource UID.
const DatasourceEnv = "GREPTIMEDB_DATASOURCE_UID"

type templateData struct {
	KPITable     string
	BreakerTable string
}

// Render renders the embedded dashboard templates into outDir.
func Render(outDir string) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	data := templateData{KPITable: metrics.KPITableName, BreakerTable: metrics.BreakerTableName}
	for _, e := range names {
		name := e.Name()
		t, err := template.New(name).Funcs(funcMap).ParseFS(templates, "templates/"+name)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(name, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			os.Remove(outPath)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
