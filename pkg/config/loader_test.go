package config

import (
	"testing"
)

func analyzeProfile() *Profile {
	return &Profile{
		Mode:      ModeAnalyze,
		Model:     "test-model",
		Exclude:   []string{"node_modules", ".git"},
		Blacklist: []string{`\.secret$`},
		Whitelist: []string{`important\.secret$`},
	}
}

func TestLoadGlobalConfigFromPath(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid config",
			yaml: `
version: "1"
active_profile: default
profiles:
  default:
    mode: analyze
    model: test-model
`,
			wantErr: false,
		},
		{
			name: "missing active profile",
			yaml: `
version: "1"
profiles:
  default:
    mode: analyze
`,
			wantErr: true,
		},
		{
			name: "active profile not defined",
			yaml: `
version: "1"
active_profile: missing
profiles:
  default:
    mode: analyze
`,
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			yaml:    "::: not yaml :::",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := NewMockFileSystem()
			fs.AddFile("/home/testuser/.sawmill/config.yaml", []byte(tt.yaml))

			_, err := LoadGlobalConfigFromPath("/home/testuser/.sawmill/config.yaml", fs)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadGlobalConfigFromPath() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindLocalConfig(t *testing.T) {
	fs := NewMockFileSystem()
	fs.AddFile("/home/testuser/project/.sawmill.yaml", []byte("exclude: [tmp]"))

	tests := []struct {
		name     string
		startDir string
		want     string
	}{
		{
			name:     "config in start dir",
			startDir: "/home/testuser/project",
			want:     "/home/testuser/project/.sawmill.yaml",
		},
		{
			name:     "config found walking up",
			startDir: "/home/testuser/project/src/deep",
			want:     "/home/testuser/project/.sawmill.yaml",
		},
		{
			name:     "no config anywhere",
			startDir: "/home/testuser/other",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindLocalConfigWithFS(tt.startDir, fs)
			if err != nil {
				t.Fatalf("FindLocalConfigWithFS() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FindLocalConfigWithFS() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeConfig(t *testing.T) {
	global := &GlobalConfig{
		ActiveProfile: "default",
		Profiles:      map[string]*Profile{"default": analyzeProfile()},
	}

	t.Run("no local config", func(t *testing.T) {
		got, err := MergeConfig(global, nil, "")
		if err != nil {
			t.Fatalf("MergeConfig() error = %v", err)
		}
		if !stringSlicesEqual(got.Exclude, []string{"node_modules", ".git"}) {
			t.Errorf("Exclude = %v", got.Exclude)
		}
		if got.SizeBudget != DefaultSizeBudget {
			t.Errorf("SizeBudget = %d, want default %d", got.SizeBudget, DefaultSizeBudget)
		}
		if got.ConflictPolicy != ConflictFirstWins {
			t.Errorf("ConflictPolicy = %q, want %q", got.ConflictPolicy, ConflictFirstWins)
		}
		if !got.UseGitignore {
			t.Error("UseGitignore should default to true")
		}
		if got.ProfileName != "default" {
			t.Errorf("ProfileName = %q", got.ProfileName)
		}
	})

	t.Run("local adds to exclude and blacklist", func(t *testing.T) {
		local := &LocalConfig{
			Exclude:   []string{"tmp", "build"},
			Blacklist: []string{`\.tmp$`},
		}
		got, err := MergeConfig(global, local, "/home/user/project")
		if err != nil {
			t.Fatalf("MergeConfig() error = %v", err)
		}
		if !stringSlicesEqual(got.Exclude, []string{"node_modules", ".git", "tmp", "build"}) {
			t.Errorf("Exclude = %v", got.Exclude)
		}
		if !stringSlicesEqual(got.Blacklist, []string{`\.secret$`, `\.tmp$`}) {
			t.Errorf("Blacklist = %v", got.Blacklist)
		}
		// Whitelist comes from global only
		if !stringSlicesEqual(got.Whitelist, []string{`important\.secret$`}) {
			t.Errorf("Whitelist = %v", got.Whitelist)
		}
	})

	t.Run("local redirects output relative to config dir", func(t *testing.T) {
		local := &LocalConfig{OutputDir: "out/converted"}
		got, err := MergeConfig(global, local, "/home/user/project")
		if err != nil {
			t.Fatalf("MergeConfig() error = %v", err)
		}
		if got.OutputDir != "/home/user/project/out/converted" {
			t.Errorf("OutputDir = %q", got.OutputDir)
		}
		if got.LocalConfigPath != "/home/user/project/.sawmill.yaml" {
			t.Errorf("LocalConfigPath = %q", got.LocalConfigPath)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *MergedConfig {
		c := &MergedConfig{Mode: ModeAnalyze}
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*MergedConfig)
		wantErr bool
	}{
		{
			name:    "valid analyze config",
			mutate:  func(c *MergedConfig) {},
			wantErr: false,
		},
		{
			name:    "missing mode",
			mutate:  func(c *MergedConfig) { c.Mode = "" },
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mutate:  func(c *MergedConfig) { c.Mode = "translate" },
			wantErr: true,
		},
		{
			name:    "convert without target language",
			mutate:  func(c *MergedConfig) { c.Mode = ModeConvert },
			wantErr: true,
		},
		{
			name: "convert with target language",
			mutate: func(c *MergedConfig) {
				c.Mode = ModeConvert
				c.TargetLanguage = "rust"
			},
			wantErr: false,
		},
		{
			name:    "zero size budget",
			mutate:  func(c *MergedConfig) { c.SizeBudget = -1 },
			wantErr: true,
		},
		{
			name:    "bad size unit",
			mutate:  func(c *MergedConfig) { c.SizeUnit = "words" },
			wantErr: true,
		},
		{
			name:    "bad conflict policy",
			mutate:  func(c *MergedConfig) { c.ConflictPolicy = "last-wins" },
			wantErr: true,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *MergedConfig) { c.Overlap = -5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := Validate(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
