package loader

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// ActivePluginReport is a point-in-time view of one plugin.
type ActivePluginReport struct {
	Name            string        `json:"name"`
	Phase           Phase         `json:"phase"`
	Backend         HalfState     `json:"backend"`
	Frontend        HalfState     `json:"frontend"`
	FrontendRetries int           `json:"frontend_retries"`
	Error           string        `json:"error,omitempty"`
	ReadyAfter      time.Duration `json:"ready_after,omitempty"`
	Uptime          time.Duration `json:"uptime"`
}

// Report returns the state of every loaded plugin in registry order.
func (l *Loader) Report() []ActivePluginReport {
	uptime := time.Since(l.startTime)

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ActivePluginReport, 0, len(l.order))
	for _, name := range l.order {
		p := l.plugins[name]
		r := ActivePluginReport{
			Name:       name,
			Phase:      p.phase,
			Backend:    p.backend,
			Frontend:   p.frontend,
			ReadyAfter: p.readyAfter,
			Uptime:     uptime,
		}
		err := p.backendErr
		if p.handle != nil {
			r.FrontendRetries = p.handle.Connection().RetryCount
			if err == nil {
				err = p.handle.Err()
			}
		}
		if err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}
	return out
}

// PrintActivePlugins writes a table of the loaded plugins followed by a
// one-line summary.
func (l *Loader) PrintActivePlugins(w io.Writer) error {
	reports := l.Report()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLUGIN\tPHASE\tBACKEND\tFRONTEND\tREADY AFTER")
	ready := 0
	for _, r := range reports {
		after := "-"
		if r.Phase == PhaseReady {
			ready++
			after = r.ReadyAfter.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Phase, r.Backend, r.Frontend, after)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d/%d plugins ready, uptime %s\n",
		ready, len(reports), time.Since(l.startTime).Round(time.Millisecond))
	return err
}
