package executors

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/yurifrl/categorisation/pkg/catalog"
	"github.com/yurifrl/categorisation/pkg/plan"
	"github.com/yurifrl/categorisation/pkg/result"
)

var (
	validStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	stepStyle    = lipgloss.NewStyle().Bold(true)
)

// Plan reads and adapts every bound source of p and prints what apply would
// send, without calling any vendor.
func (e *Executor) Plan(w io.Writer, p *plan.Plan) error {
	src := p.Source(e.config.Delimiter())
	ex := e.WithSource(src)
	e.logger.Debug("planning", "steps", len(p.Steps))

	for _, kind := range catalog.Kinds {
		if src.Path(kind) == "" {
			continue
		}
		seq := result.NewSequence("Read " + string(kind))
		owners, valid, err := ex.preview(kind, seq)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, stepStyle.Render(fmt.Sprintf("%s: %d valid record(s) for %d user(s)", kind, valid, owners)))
		for _, r := range seq.Results() {
			fmt.Fprintln(w, invalidStyle.Render("  ! "+r.Message))
		}
	}

	fmt.Fprintln(w)
	for i, st := range p.Steps {
		fmt.Fprintln(w, validStyle.Render(fmt.Sprintf("+ [%d] %s", i+1, st)))
	}
	fmt.Fprintf(w, "\nPlan: %d step(s) will be applied\n", len(p.Steps))
	return nil
}

func (e *Executor) preview(kind catalog.Kind, seq *result.Sequence) (owners, valid int, err error) {
	switch kind {
	case catalog.UserEntity:
		c, err := e.users(seq)
		return len(c.Owners()), c.Len(), err
	case catalog.AccountEntity:
		c, err := e.accounts(seq)
		return len(c.Owners()), c.Len(), err
	case catalog.TransactionEntity:
		c, err := e.transactions(seq)
		return len(c.Owners()), c.Len(), err
	}
	return 0, 0, fmt.Errorf("unknown entity kind %s", kind)
}
