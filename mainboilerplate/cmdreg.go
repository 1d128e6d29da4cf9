package mainboilerplate

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// AddCommandFunc adds a sub-command to its parent.
type AddCommandFunc func(parent *flags.Command) error

// CommandRegistry collects sub-commands by the dotted path of their parent
// (eg "" for the root, or "db.meta"), so that each command may register
// itself from its own file.
type CommandRegistry map[string][]AddCommandFunc

// NewCommandRegistry returns an empty CommandRegistry.
func NewCommandRegistry() CommandRegistry { return make(CommandRegistry) }

// AddCommand registers a command |name| under |parentPath|.
func (cr CommandRegistry) AddCommand(parentPath, name, short, long string, data interface{}) {
	cr[parentPath] = append(cr[parentPath], func(parent *flags.Command) error {
		var _, err = parent.AddCommand(name, short, long, data)
		return errors.WithMessagef(err, "adding command %q", name)
	})
}

// AddCommands adds commands registered under |path| to |cmd|, and then
// descends into each command of |cmd| to add those registered beneath it.
func (cr CommandRegistry) AddCommands(path string, cmd *flags.Command) error {
	for _, fn := range cr[path] {
		if err := fn(cmd); err != nil {
			return err
		}
	}
	for _, child := range cmd.Commands() {
		var childPath = child.Name
		if path != "" {
			childPath = path + "." + child.Name
		}
		if err := cr.AddCommands(childPath, child); err != nil {
			return err
		}
	}
	return nil
}
