package languages

import (
	"bytes"
	"fmt"
	"text/template"
)

type ID string

const (
	C      ID = "c"
	CPP    ID = "cpp"
	Java   ID = "java"
	Python ID = "python"
)

type RuntimeConfig struct {
	// Image is only used by the docker sandbox.
	Image string `yaml:"Image"`
	// Extension of the staged source file, without the dot.
	Extension string `yaml:"Extension"`
	// ArtifactSuffix is appended to the source base name to locate the compiled artifact.
	ArtifactSuffix string   `yaml:"ArtifactSuffix"`
	CompileCommand []string `yaml:"CompileCommand,omitempty"`
	RunCommand     []string `yaml:"RunCommand"`
}

type Language struct {
	ID      ID            `yaml:"-"`
	Name    string        `yaml:"Name"`
	Aliases []string      `yaml:"Aliases,omitempty"`
	Config  RuntimeConfig `yaml:",inline"`
}

// Compiled reports whether a compile step runs before the program.
func (l Language) Compiled() bool {
	return len(l.Config.CompileCommand) > 0
}

// CommandVars are the values available to command templates.
type CommandVars struct {
	Source    string
	Artifact  string
	Dir       string
	ClassName string
}

func (l Language) CompileArgs(v CommandVars) ([]string, error) {
	if !l.Compiled() {
		return nil, nil
	}
	return render(l.ID, l.Config.CompileCommand, v)
}

func (l Language) RunArgs(v CommandVars) ([]string, error) {
	return render(l.ID, l.Config.RunCommand, v)
}

func render(id ID, args []string, v CommandVars) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		tmpl, err := template.New(fmt.Sprintf("%s-%d", id, i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("language %s: bad command argument %q: %w", id, arg, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, v); err != nil {
			return nil, fmt.Errorf("language %s: render %q: %w", id, arg, err)
		}
		out = append(out, buf.String())
	}
	return out, nil
}

func (l Language) validate() error {
	if l.ID == "" {
		return fmt.Errorf("language id is empty")
	}
	if l.Config.Extension == "" {
		return fmt.Errorf("language %s: extension is empty", l.ID)
	}
	if len(l.Config.RunCommand) == 0 {
		return fmt.Errorf("language %s: run command is empty", l.ID)
	}
	probe := CommandVars{Source: "s", Artifact: "a", Dir: "d", ClassName: "C"}
	if _, err := l.CompileArgs(probe); err != nil {
		return err
	}
	_, err := l.RunArgs(probe)
	return err
}
