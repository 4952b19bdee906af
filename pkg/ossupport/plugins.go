package ossupport

// StaticPlugin is an OSPlugin defined entirely by data. All builtin
// plugins are instances of it; external plugins may implement OSPlugin
// directly.
type StaticPlugin struct {
	OSName string

	// Parents lists ancestor OS names, most general first, excluding
	// the OS itself. InheritsVersion marks ancestors that share this
	// OS's version identifiers (e.g. xubuntu/ubuntu); others get no
	// version correspondence.
	Parents []Parent

	Versions        []string
	Installers      []string
	Default         string
	FeatureDefaults []string
}

// Parent is one ancestor entry of a StaticPlugin.
type Parent struct {
	Name            string
	InheritsVersion bool
}

func (p *StaticPlugin) Name() string { return p.OSName }

func (p *StaticPlugin) Ancestors(version string) []AncestorOS {
	chain := make([]AncestorOS, 0, len(p.Parents)+1)
	for _, parent := range p.Parents {
		ancestor := AncestorOS{Name: parent.Name}
		if parent.InheritsVersion {
			ancestor.Version = version
		}
		chain = append(chain, ancestor)
	}
	return append(chain, AncestorOS{Name: p.OSName, Version: version})
}

func (p *StaticPlugin) KnownVersions() []string { return p.Versions }

func (p *StaticPlugin) CoreInstallers(version string) []string { return p.Installers }

func (p *StaticPlugin) DefaultInstaller() string { return p.Default }

func (p *StaticPlugin) DefaultFeatures(version string) []string { return p.FeatureDefaults }

// Builtin OS plugins. Debian derivatives use codenames; the
// debian/ubuntu codename spaces are unrelated, so ubuntu ancestors
// carry no debian version correspondence. Xubuntu shares ubuntu's
// versions.
var builtinPlugins = []*StaticPlugin{
	{
		OSName: "debian",
		Versions: []string{
			"etch", "lenny", "squeeze", "wheezy", "jessie",
		},
		Installers: []string{"apt"},
		Default:    "apt",
	},
	{
		OSName:  "ubuntu",
		Parents: []Parent{{Name: "debian"}},
		Versions: []string{
			"lucid", "maverick", "natty", "oneiric", "precise",
			"quantal", "raring", "saucy", "trusty", "utopic",
		},
		Installers: []string{"apt"},
		Default:    "apt",
	},
	{
		OSName: "xubuntu",
		Parents: []Parent{
			{Name: "debian"},
			{Name: "ubuntu", InheritsVersion: true},
		},
		Versions: []string{
			"lucid", "maverick", "natty", "oneiric", "precise",
			"quantal", "raring", "saucy", "trusty", "utopic",
		},
		Installers: []string{"apt"},
		Default:    "apt",
	},
	{
		OSName: "fedora",
		Versions: []string{
			"18", "19", "20", "21",
		},
		Installers: []string{"dnf"},
		Default:    "dnf",
	},
	{
		OSName: "osx",
		Versions: []string{
			"tiger", "leopard", "snow", "lion",
			"mountain_lion", "mavericks", "yosemite",
		},
		Installers: []string{"homebrew", "pip", "gem"},
		Default:    "homebrew",
	},
}
