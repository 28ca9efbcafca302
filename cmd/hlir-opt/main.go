// hlir-opt is the pass driver: it reads a serialized versioned module, runs
// the requested passes, and writes the result back either as a serialized
// versioned module or as text.
//
// Example:
//
//	hlir-opt -input model.vhlo -refine_shapes "tensor<1x2xf32>, tensor<4xi32>" \
//	    -decompose_composites -target_version 1.2.0 -output model_1.2.vhlo
package main

import (
	"flag"
	"io"
	"os"

	"github.com/gohlo/hlir/pkg/canon"
	"github.com/gohlo/hlir/pkg/composite"
	"github.com/gohlo/hlir/pkg/hlir"
	"github.com/gohlo/hlir/pkg/refine"
	"github.com/gohlo/hlir/pkg/types/shapes"
	"github.com/gohlo/hlir/pkg/vhlo"
	"github.com/gohlo/hlir/pkg/vhlo/vwire"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagInput  = flag.String("input", "", "Path of the serialized versioned module to read. \"-\" reads stdin.")
	flagOutput = flag.String("output", "", "Path to write the serialized versioned module to. "+
		"When empty the module is printed as text to stdout instead.")
	flagTargetVersion = flag.String("target_version", vhlo.CurrentToken,
		"Version to serialize at, as MAJOR.MINOR.PATCH or the token \"current\".")
	flagRefineShapes = flag.String("refine_shapes", "",
		"Comma-separated list of tensor types, one per entry function argument, e.g. "+
			"\"tensor<1x2xf32>, tensor<?x4xi32>\". When set, the entry arguments are refined to these "+
			"types and shapes are propagated to a fixed point.")
	flagCanonicalize = flag.Bool("canonicalize", false, "Run canonicalization and constant folding.")
	flagDecompose    = flag.Bool("decompose_composites", false, "Replace composites with calls to their decompositions.")
	flagExclusions   = flag.String("composite_exclusions", "",
		"Comma-separated list of fully qualified composite names to leave untouched.")
	flagFloatFolding = flag.Bool("allow_float_folding", false,
		"Permit floating-point constant folding whose results may differ from run time under "+
			"different rounding or precision.")
	flagMaxIterations = flag.Int("max_iterations", 0,
		"Budget for the shape refinement loop. 0 uses the default.")
	flagFailOnDeprecated = flag.Bool("fail_on_deprecated_ops", false,
		"Treat usage of deprecated operations as an error instead of a warning.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagInput == "" {
		klog.Exitf("missing -input: nothing to do")
	}
	if err := run(); err != nil {
		klog.Exitf("%+v", err)
	}
}

func run() error {
	registry := vhlo.NewRegistry()
	module, version, err := readModule(*flagInput, registry)
	if err != nil {
		return err
	}
	klog.V(1).Infof("read module at version %s with %d functions", version, len(module.Functions))

	if err := vhlo.CheckDeprecated(module, registry, *flagFailOnDeprecated); err != nil {
		return err
	}

	// Passes operate on the source vocabulary.
	if err := vhlo.Delegalize(module, version, registry); err != nil {
		return err
	}

	if *flagRefineShapes != "" {
		if err := refineShapes(module); err != nil {
			return err
		}
	}
	if *flagCanonicalize {
		opts := canon.Options{AllowFloatFolding: *flagFloatFolding}
		for _, fn := range module.Functions {
			if _, err := canon.Apply(fn, opts); err != nil {
				return errors.WithMessagef(err, "canonicalizing function %q", fn.Name)
			}
		}
	}
	if *flagDecompose {
		opts := composite.Options{Exclude: composite.ParseExclusions(*flagExclusions)}
		if err := composite.Decompose(module, opts); err != nil {
			return err
		}
	}
	if err := module.Verify(); err != nil {
		return err
	}

	if *flagOutput == "" {
		return module.Write(os.Stdout)
	}
	target, err := vhlo.ParseVersion(*flagTargetVersion)
	if err != nil {
		return err
	}
	if err := vhlo.Legalize(module, target, registry); err != nil {
		return err
	}
	encoded, err := vwire.Encode(module, target, registry)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(*flagOutput, encoded, 0644), "writing %s", *flagOutput)
}

func readModule(path string, registry *vhlo.Registry) (*hlir.Module, vhlo.Version, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, vhlo.Version{}, errors.Wrapf(err, "reading %s", path)
	}
	return vwire.Decode(data, registry)
}

func refineShapes(module *hlir.Module) error {
	main := module.Main()
	if main == nil {
		return errors.New("module has no public entry function to refine")
	}
	targetTypes, err := shapes.ParseList(*flagRefineShapes)
	if err != nil {
		return errors.WithMessage(err, "parsing -refine_shapes")
	}
	if err := refine.RefineArguments(main, targetTypes); err != nil {
		return err
	}
	state, err := refine.Run(main, refine.Options{
		MaxIterations:     *flagMaxIterations,
		AllowFloatFolding: *flagFloatFolding,
	})
	if err != nil {
		return err
	}
	klog.V(1).Infof("shape refinement finished in state %s", state)
	return nil
}
