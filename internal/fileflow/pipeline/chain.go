package pipeline

import (
	"fmt"
	"io"
	"sort"

	"fileflow/internal/fileflow/domain"
	"fileflow/pkg/logger"
)

// Chain executes an ordered set of processors against one byte stream.
// A chain instance serves exactly one run.
type Chain struct {
	processors []Processor
	bufferSize int
	logger     *logger.Logger
}

// NewChain filters the given processors by applicability and sorts them
// ascending by priority.
func NewChain(processors []Processor, pctx *domain.ProcessingContext, bufferSize int, log *logger.Logger) *Chain {
	active := make([]Processor, 0, len(processors))
	for _, p := range processors {
		if p.Applicable(pctx) {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority() < active[j].Priority()
	})

	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}

	return &Chain{
		processors: active,
		bufferSize: bufferSize,
		logger:     log.WithField("component", "processor-chain"),
	}
}

// ActiveProcessors returns the names of the processors participating in
// this run, in execution order.
func (c *Chain) ActiveProcessors() []string {
	names := make([]string, len(c.processors))
	for i, p := range c.processors {
		names[i] = p.Name()
	}
	return names
}

// Execute feeds the stream through every active processor in priority
// order and drains the final output into buffered chunks.
//
// Error-resume rule: a processor failing Init is inert for the run; a
// processor failing Process has the input it received substituted as
// its output. Neither aborts the run. Only an unrecoverable error while
// draining the final stream fails the whole run.
func (c *Chain) Execute(r io.Reader, pctx *domain.ProcessingContext) *Result {
	result := &Result{
		Context: pctx,
		Stats:   make(map[string]*Statistics, len(c.processors)),
	}

	inert := make(map[string]bool)
	for _, p := range c.processors {
		if err := p.Init(pctx); err != nil {
			c.logger.Warn("processor initialization failed, treating as inert",
				"processor", p.Name(), "file", pctx.FileName, "error", err)
			p.Stats().Errors++
			inert[p.Name()] = true
		}
	}

	current := r
	for _, p := range c.processors {
		if inert[p.Name()] {
			continue
		}
		out, err := p.Process(current, pctx)
		if err != nil {
			// skip this processor transparently: its input becomes
			// its output
			c.logger.Warn("processor failed, passing input through",
				"processor", p.Name(), "file", pctx.FileName, "error", err)
			p.Stats().Errors++
			continue
		}
		current = out
	}

	chunks, err := c.drain(current)
	if err != nil {
		result.Success = false
		result.Error = fmt.Sprintf("stream processing failed: %v", err)
		c.cleanup(pctx, inert, result)
		return result
	}

	result.Chunks = chunks
	result.Success = true
	c.cleanup(pctx, inert, result)
	return result
}

// cleanup runs Cleanup on every active processor regardless of earlier
// errors and collects final statistics.
func (c *Chain) cleanup(pctx *domain.ProcessingContext, inert map[string]bool, result *Result) {
	for _, p := range c.processors {
		if !inert[p.Name()] {
			if err := p.Cleanup(pctx); err != nil {
				c.logger.Warn("processor cleanup failed",
					"processor", p.Name(), "file", pctx.FileName, "error", err)
				p.Stats().Errors++
			}
		}
		result.Stats[p.Name()] = p.Stats()
	}
}

func (c *Chain) drain(r io.Reader) ([][]byte, error) {
	var chunks [][]byte
	for {
		buf := make([]byte, c.bufferSize)
		n, err := r.Read(buf)
		if n > 0 {
			chunks = append(chunks, buf[:n])
		}
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
