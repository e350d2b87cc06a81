package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/skosovsky/toolloop"
)

// session is the execution context shared by the tools of one run.
type session struct {
	now func() time.Time
}

type timeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone such as Europe/Berlin; UTC when empty"`
}

type calcArgs struct {
	A  float64 `json:"a" jsonschema:"Left operand"`
	B  float64 `json:"b" jsonschema:"Right operand"`
	Op string  `json:"op" jsonschema:"Operation to apply" enum:"add,sub,mul,div,pow"`
}

func (a calcArgs) Validate() error {
	if a.Op == "div" && a.B == 0 {
		return errors.New("division by zero")
	}
	return nil
}

func currentTime(_ context.Context, s *session, args timeArgs) (string, error) {
	loc := time.UTC
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return "", &toolloop.ParseError{Message: fmt.Sprintf("unknown time zone %q", args.Timezone), Err: err}
		}
		loc = l
	}
	return s.now().In(loc).Format(time.RFC3339), nil
}

func calculate(_ context.Context, _ *session, args calcArgs) (string, error) {
	var r float64
	switch args.Op {
	case "add":
		r = args.A + args.B
	case "sub":
		r = args.A - args.B
	case "mul":
		r = args.A * args.B
	case "div":
		r = args.A / args.B
	case "pow":
		r = math.Pow(args.A, args.B)
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return "", fmt.Errorf("result of %s is not a finite number", args.Op)
	}
	return strconv.FormatFloat(r, 'g', -1, 64), nil
}

func builtinTools() ([]toolloop.Tool[*session], error) {
	clock, err := toolloop.NewTool("current_time", "Current date and time in RFC 3339 format", currentTime,
		toolloop.WithTags("builtin", "time"))
	if err != nil {
		return nil, err
	}
	calc, err := toolloop.NewTool("calculate", "Apply an arithmetic operation to two numbers", calculate,
		toolloop.WithStrict(), toolloop.WithTags("builtin", "math"))
	if err != nil {
		return nil, err
	}
	return []toolloop.Tool[*session]{clock, calc}, nil
}
