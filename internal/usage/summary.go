package usage

import (
	"sort"

	"github.com/samber/lo"
)

// ProgramSummary is one program's usage on a device.
type ProgramSummary struct {
	Program     string   `json:"program"`
	Active      uint32   `json:"active"`
	Open        uint32   `json:"open"`
	Subprograms []string `json:"subprograms"`
}

// DeviceSummary groups a device's totals by program.
type DeviceSummary struct {
	Account  string                  `json:"account"`
	Date     string                  `json:"date"`
	Device   DeviceID                `json:"device"`
	Info     *DeviceInfo             `json:"info"`
	Devices  map[DeviceID]DeviceInfo `json:"devices"`
	Active   uint32                  `json:"active"`
	Programs []ProgramSummary        `json:"programs"`
}

// Summarize folds a device's active totals into per-program sums, keeping the
// subprogram labels seen under each program. Programs are ordered by active
// time, most used first. It reports false when the device has no usage.
func Summarize(state *UserState, device DeviceID) (*DeviceSummary, bool) {
	if state == nil {
		return nil, false
	}
	totals, ok := state.Monitor[device]
	if !ok || totals == nil {
		return nil, false
	}

	byProgram := make(map[string]*ProgramSummary)
	program := func(name string) *ProgramSummary {
		p, ok := byProgram[name]
		if !ok {
			p = &ProgramSummary{Program: name, Subprograms: []string{}}
			byProgram[name] = p
		}
		return p
	}

	var active uint32
	for key, secs := range totals.Active {
		p := program(key.Program)
		p.Active = addSeconds(p.Active, secs)
		if key.HasSubprogram() {
			p.Subprograms = append(p.Subprograms, key.Subprogram)
		}
		active = addSeconds(active, secs)
	}
	for key, secs := range totals.Open {
		p := program(key.Program)
		p.Open = addSeconds(p.Open, secs)
	}

	programs := lo.Map(lo.Values(byProgram), func(p *ProgramSummary, _ int) ProgramSummary {
		p.Subprograms = lo.Uniq(p.Subprograms)
		sort.Strings(p.Subprograms)
		return *p
	})
	sort.Slice(programs, func(i, j int) bool {
		if programs[i].Active != programs[j].Active {
			return programs[i].Active > programs[j].Active
		}
		return programs[i].Program < programs[j].Program
	})

	summary := &DeviceSummary{
		Device:   device,
		Devices:  state.Clone().Devices,
		Active:   active,
		Programs: programs,
	}
	if info, ok := state.Devices[device]; ok {
		summary.Info = &info
	}
	return summary, true
}
