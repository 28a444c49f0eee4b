package main

import (
	"fmt"
	"strconv"

	"github.com/iti/cmdline"
	log "github.com/sirupsen/logrus"

	"github.com/q713/simbricks"
)

// cmdlineParams defines the parameters recognized
// on the command line
func cmdlineParams() *cmdline.CmdParser {
	cp := cmdline.NewCmdParser()
	cp.AddFlag(cmdline.StringFlag, "cfg", true)       // build configuration, yaml or json
	cp.AddFlag(cmdline.StringFlag, "outDir", true)    // directory receiving the archives and the description
	cp.AddFlag(cmdline.StringFlag, "exp", false)      // experiment parameters applied after the build
	cp.AddFlag(cmdline.StringFlag, "manifest", false) // where to write the export manifest
	cp.AddFlag(cmdline.StringFlag, "rngseed", false)  // master seed of the MAC address streams
	cp.AddFlag(cmdline.BoolFlag, "verbose", false)    // log every allocation and wiring step

	return cp
}

// main gives the entry point
func main() {
	cp := cmdlineParams()
	cp.Parse()

	if cp.IsLoaded("verbose") {
		log.SetLevel(log.DebugLevel)
	}

	cfgFile := cp.GetVar("cfg").(string)
	outDir := cp.GetVar("outDir").(string)

	valid, err := simbricks.CheckDirectories([]string{outDir})
	if !valid {
		panic(err)
	}

	inFiles := []string{cfgFile}
	var expFile string
	if cp.IsLoaded("exp") {
		expFile = cp.GetVar("exp").(string)
		inFiles = append(inFiles, expFile)
	}
	ok, err := simbricks.CheckReadableFiles(inFiles)
	if !ok {
		panic(err)
	}

	var manifestFile string
	if cp.IsLoaded("manifest") {
		manifestFile = cp.GetVar("manifest").(string)
		if _, err := simbricks.CheckOutputFiles([]string{manifestFile}); err != nil {
			panic(err)
		}
	}

	// if requested, set the rng seed
	if cp.IsLoaded("rngseed") {
		seed, err := strconv.ParseUint(cp.GetVar("rngseed").(string), 10, 64)
		if err != nil {
			panic(fmt.Errorf("rngseed: %w", err))
		}
		simbricks.SetMACSeed(seed)
	}

	buildCfg, err := simbricks.ReadBuildCfg(cfgFile, simbricks.UseYAML(cfgFile), []byte{})
	if err != nil {
		panic(err)
	}

	exp, err := simbricks.BuildExperiment(buildCfg)
	if err != nil {
		panic(err)
	}

	if len(expFile) > 0 {
		expCfg, err := simbricks.ReadExpCfg(expFile, simbricks.UseYAML(expFile), []byte{})
		if err != nil {
			panic(err)
		}
		if err := simbricks.ApplyExpCfg(exp, expCfg); err != nil {
			panic(err)
		}
	}

	manifest, err := simbricks.Export(exp, outDir)
	if err != nil {
		panic(err)
	}

	if len(manifestFile) > 0 {
		if err := manifest.WriteToFile(manifestFile); err != nil {
			panic(err)
		}
	}

	log.WithFields(log.Fields{
		"experiment": exp.Name,
		"hosts":      len(manifest.Hosts),
		"desc":       manifest.DescFile,
	}).Info("experiment exported")
	fmt.Println("Done")
}
