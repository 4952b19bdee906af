package installers

import (
	"github.com/catkin/xylem/pkg/logging"
	"github.com/catkin/xylem/pkg/ossupport"
)

// ContextOptions carries the user configuration that shapes the
// effective installer order.
type ContextOptions struct {
	// CoreInstallers overrides the OS plugin's core installer list.
	// Nil means use the plugin's list; an empty non-nil list disables
	// core installers entirely.
	CoreInstallers []string

	// UseAdditionalInstallers appends installers that declare
	// themselves usable on the platform after the core installers.
	UseAdditionalInstallers bool
}

// Context combines the OS plugin, installer plugins and user
// configuration into the effective installer order for one platform.
type Context struct {
	platform   ossupport.Platform
	core       []string
	additional []string
}

// NewContext computes the installer setup for a platform.
func NewContext(set *Set, osPlugin ossupport.OSPlugin,
	platform ossupport.Platform, opts ContextOptions) *Context {

	logger := logging.GetLogger("installers.context")

	c := &Context{platform: platform}

	coreNames := opts.CoreInstallers
	if coreNames == nil {
		coreNames = osPlugin.CoreInstallers(platform.Version())
		logger.Debug().
			Strs("installers", coreNames).
			Msg("Core installers from OS plugin")
	} else {
		logger.Debug().
			Strs("installers", coreNames).
			Msg("Core installers from configuration")
	}
	for _, name := range coreNames {
		if !set.Has(name) {
			logger.Error().
				Str("installer", name).
				Msg("Ignoring core installer without a plugin")
			continue
		}
		c.core = append(c.core, name)
	}

	if opts.UseAdditionalInstallers {
		for _, name := range set.Names() {
			if containsString(c.core, name) {
				continue
			}
			plugin, err := set.Plugin(name)
			if err != nil {
				continue
			}
			if plugin.UsableOn(platform) {
				c.additional = append(c.additional, name)
			}
		}
		logger.Debug().
			Strs("installers", c.additional).
			Msg("Additional installers for platform")
	}

	return c
}

// Platform returns the platform this context was built for.
func (c *Context) Platform() ossupport.Platform {
	return c.platform
}

// CoreInstallers returns the effective core installer names in order.
func (c *Context) CoreInstallers() []string {
	return append([]string(nil), c.core...)
}

// AdditionalInstallers returns the additional installer names in
// plugin registration order.
func (c *Context) AdditionalInstallers() []string {
	return append([]string(nil), c.additional...)
}

// EffectiveOrder returns core installers followed by additional
// installers. Earlier names win arbitration ties.
func (c *Context) EffectiveOrder() []string {
	order := make([]string, 0, len(c.core)+len(c.additional))
	order = append(order, c.core...)
	order = append(order, c.additional...)
	return order
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
