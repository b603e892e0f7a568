package analysis

import (
	"fmt"

	"github.com/huangsam/covagg/internal/classfile"
	"github.com/huangsam/covagg/schema"
)

// labelInfo carries the control flow facts of one label offset.
type labelInfo struct {
	target               bool
	successor            bool
	multiTarget          bool
	methodInvocationLine bool
}

// needsProbe reports whether falling through into the label requires a probe.
func (l *labelInfo) needsProbe() bool {
	return l.successor && (l.multiTarget || l.methodInvocationLine)
}

func (l *labelInfo) setTarget() {
	if l.target || l.successor {
		l.multiTarget = true
	} else {
		l.target = true
	}
}

func (l *labelInfo) setSuccessor() {
	l.successor = true
	if l.target {
		l.multiTarget = true
	}
}

// node is one instruction in the coverage graph.
type node struct {
	line              int
	branches          int
	covered           []bool
	coveredCount      int
	predecessor       *node
	predecessorBranch int
}

func (n *node) hasCovered() bool { return n.coveredCount > 0 }

func (n *node) setCovered(branch int) {
	for len(n.covered) <= branch {
		n.covered = append(n.covered, false)
	}
	if !n.covered[branch] {
		n.covered[branch] = true
		n.coveredCount++
	}
}

// addBranchTo adds an edge to target; coverage already known at the target flows back.
func (n *node) addBranchTo(target *node, branch int) {
	n.branches++
	target.predecessor = n
	target.predecessorBranch = branch
	if target.hasCovered() {
		propagate(n, branch)
	}
}

// addProbeBranch adds an edge that ends in a probe.
func (n *node) addProbeBranch(executed bool, branch int) {
	n.branches++
	if executed {
		propagate(n, branch)
	}
}

// propagate marks the branch covered and walks back the single-predecessor chain.
func propagate(n *node, branch int) {
	for n != nil {
		if n.hasCovered() {
			n.setCovered(branch)
			return
		}
		n.setCovered(branch)
		branch = n.predecessorBranch
		n = n.predecessor
	}
}

type jump struct {
	source *node
	target int
	branch int
}

// methodFlow replays the probes of one method body.
type methodFlow struct {
	insns  []classfile.Instruction
	labels map[int]*labelInfo
	lines  map[int]int
	probes []bool
	nextID int
}

func newMethodFlow(code *classfile.Code, firstProbe int, probes []bool) (*methodFlow, error) {
	insns, err := classfile.Decode(code.Bytecode)
	if err != nil {
		return nil, err
	}
	f := &methodFlow{
		insns:  insns,
		labels: map[int]*labelInfo{},
		lines:  map[int]int{},
		probes: probes,
		nextID: firstProbe,
	}
	mark := func(offset int) {
		if _, ok := f.labels[offset]; !ok {
			f.labels[offset] = &labelInfo{}
		}
	}
	for _, in := range insns {
		switch in.Kind {
		case classfile.KindConditional, classfile.KindGoto, classfile.KindJsr:
			mark(in.Target)
		case classfile.KindSwitch:
			mark(in.Default)
			for _, c := range in.Cases {
				mark(c)
			}
		}
	}
	for _, h := range code.Handlers {
		mark(h.StartPC)
		mark(h.EndPC)
		mark(h.HandlerPC)
	}
	// Later entries for the same offset win.
	for _, ln := range code.Lines {
		mark(ln.StartPC)
		f.lines[ln.StartPC] = ln.Line
	}
	for _, off := range code.LocalRanges {
		mark(off)
	}

	for i := len(code.Handlers) - 1; i >= 0; i-- {
		f.labels[code.Handlers[i].StartPC].setTarget()
		f.labels[code.Handlers[i].HandlerPC].setTarget()
	}
	f.analyzeLabels()
	return f, nil
}

// analyzeLabels computes target, successor and multi target facts for every label.
func (f *methodFlow) analyzeLabels() {
	successor, first := false, true
	lineStart := -1
	for _, in := range f.insns {
		if l, ok := f.labels[in.Offset]; ok {
			if first {
				l.setTarget()
			}
			if successor {
				l.setSuccessor()
			}
		}
		if _, ok := f.lines[in.Offset]; ok {
			lineStart = in.Offset
		}

		switch in.Kind {
		case classfile.KindConditional, classfile.KindJsr:
			f.labels[in.Target].setTarget()
			successor = true
		case classfile.KindGoto:
			f.labels[in.Target].setTarget()
			successor = false
		case classfile.KindSwitch:
			done := map[int]bool{}
			for _, t := range append([]int{in.Default}, in.Cases...) {
				if !done[t] {
					f.labels[t].setTarget()
					done[t] = true
				}
			}
			successor = false
		case classfile.KindReturn, classfile.KindThrow, classfile.KindRet:
			successor = false
		case classfile.KindInvoke:
			successor = true
			if lineStart >= 0 {
				f.labels[lineStart].methodInvocationLine = true
			}
		default:
			successor = true
		}
		first = false
	}
}

func (f *methodFlow) multiTarget(offset int) bool {
	l, ok := f.labels[offset]
	return ok && l.multiTarget
}

func (f *methodFlow) probe() (int, bool) {
	id := f.nextID
	f.nextID++
	return id, id < len(f.probes) && f.probes[id]
}

// build creates the instruction graph, placing probes in offset order.
func (f *methodFlow) build() ([]*node, error) {
	nodes := make([]*node, 0, len(f.insns))
	at := make(map[int]*node, len(f.insns))
	var jumps []jump
	var current *node
	line := schema.UnknownLine

	for _, in := range f.insns {
		if l, ok := f.labels[in.Offset]; ok && l.needsProbe() {
			_, executed := f.probe()
			if current != nil {
				current.addProbeBranch(executed, 0)
			}
			current = nil
		}
		if nr, ok := f.lines[in.Offset]; ok {
			line = nr
		}

		n := &node{line: line}
		if current != nil {
			current.addBranchTo(n, 0)
		}
		nodes = append(nodes, n)
		at[in.Offset] = n
		current = n

		switch in.Kind {
		case classfile.KindReturn, classfile.KindThrow:
			_, executed := f.probe()
			n.addProbeBranch(executed, 0)
			current = nil
		case classfile.KindRet:
			current = nil
		case classfile.KindConditional, classfile.KindJsr, classfile.KindGoto:
			if f.multiTarget(in.Target) {
				_, executed := f.probe()
				n.addProbeBranch(executed, 1)
			} else {
				jumps = append(jumps, jump{source: n, target: in.Target, branch: 1})
			}
			if in.Kind == classfile.KindGoto {
				current = nil
			}
		case classfile.KindSwitch:
			jumps = f.switchEdges(n, in, jumps)
			current = nil
		}
	}

	for _, j := range jumps {
		target, ok := at[j.target]
		if !ok {
			return nil, fmt.Errorf("jump into the middle of an instruction at %d", j.target)
		}
		j.source.addBranchTo(target, j.branch)
	}
	return nodes, nil
}

// switchEdges numbers the distinct switch targets, default first, and places probes on multi target ones.
func (f *methodFlow) switchEdges(n *node, in classfile.Instruction, jumps []jump) []jump {
	targets := []int{in.Default}
	seen := map[int]bool{in.Default: true}
	for _, c := range in.Cases {
		if !seen[c] {
			seen[c] = true
			targets = append(targets, c)
		}
	}

	probes := make([]int, len(targets))
	for i, t := range targets {
		probes[i] = -1
		if f.multiTarget(t) {
			probes[i], _ = f.probe()
		}
	}
	for branch, t := range targets {
		if probes[branch] < 0 {
			jumps = append(jumps, jump{source: n, target: t, branch: branch})
			continue
		}
		id := probes[branch]
		n.addProbeBranch(id < len(f.probes) && f.probes[id], branch)
	}
	return jumps
}

// analyzeMethod computes the coverage of one method body starting at probe id firstProbe.
// It returns the number of probes the method consumes.
func analyzeMethod(m classfile.Method, firstProbe int, probes []bool) (*schema.MethodCoverage, int, error) {
	f, err := newMethodFlow(m.Code, firstProbe, probes)
	if err != nil {
		return nil, 0, fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
	}
	nodes, err := f.build()
	if err != nil {
		return nil, 0, fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
	}

	mc := &schema.MethodCoverage{Name: m.Name, Desc: m.Descriptor, SourceNode: schema.NewSourceNode()}
	for _, n := range nodes {
		insn := schema.CounterMissedOne
		if n.hasCovered() {
			insn = schema.CounterCoveredOne
		}
		var branch schema.Counter
		if n.branches > 1 {
			covered := min(n.coveredCount, n.branches)
			branch = schema.Counter{Missed: n.branches - covered, Covered: covered}
			c := max(0, covered-1)
			mc.Complexity = mc.Complexity.Add(schema.Counter{Missed: n.branches - c - 1, Covered: c})
		}
		mc.Instruction = mc.Instruction.Add(insn)
		mc.Branch = mc.Branch.Add(branch)
		if n.line != schema.UnknownLine {
			mc.IncrementLine(n.line, insn, branch)
		}
	}

	base := schema.CounterMissedOne
	if mc.Instruction.Covered > 0 {
		base = schema.CounterCoveredOne
	}
	mc.Method = mc.Method.Add(base)
	mc.Complexity = mc.Complexity.Add(base)
	return mc, f.nextID - firstProbe, nil
}
