// Command suitcapture records the timestream UDP stream of the SUIT
// front end into a sequence of session files.
//
// Usage:
//
//	suitcapture [flags] port outfile_base number_of_files number_of_frames number_of_channels [verbose]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/viper"
	"github.com/suitcase/suitcap"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	// Create an empty file dir/filename, if it doesn't exist.
	fullname := path.Join(dir, filename)
	if _, err := os.Stat(fullname); os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper says where to find the config file and reads it. An explicit
// configFile wins over the search path.
func setupViper(configFile string) error {
	viper.SetDefault("Verbose", false)
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %s", err)
		}
		return nil
	}

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotSuitcap := filepath.Join(HOME, ".suitcap")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotSuitcap, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/suitcap"))
	viper.AddConfigPath(dotSuitcap)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	logger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return logger
}

// parseArgs converts the positional arguments into a RunConfig.
func parseArgs(args []string) (suitcap.RunConfig, error) {
	var rc suitcap.RunConfig
	if len(args) < 5 || len(args) > 6 {
		return rc, fmt.Errorf("need 5 or 6 arguments, got %d", len(args))
	}
	ints := make([]int, 4)
	names := []string{"port", "number_of_files", "number_of_frames", "number_of_channels"}
	for i, arg := range []string{args[0], args[2], args[3], args[4]} {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return rc, fmt.Errorf("%s '%s' is not an integer", names[i], arg)
		}
		ints[i] = v
	}
	rc.Port, rc.BaseName, rc.Sessions, rc.Frames, rc.Channels = ints[0], args[1], ints[1], ints[2], ints[3]
	if rc.Port < 0 || rc.Port > 65535 {
		return rc, fmt.Errorf("port %d out of range", rc.Port)
	}
	if strings.ContainsRune(rc.BaseName, filepath.Separator) {
		return rc, fmt.Errorf("outfile_base '%s' must not contain a path separator", rc.BaseName)
	}
	if len(args) == 6 {
		switch args[5] {
		case "0":
		case "1":
			rc.Verbose = true
		default:
			return rc, fmt.Errorf("verbose must be 0 or 1, got '%s'", args[5])
		}
	}
	return rc, rc.Validate()
}

func usage() {
	fmt.Fprintln(flag.CommandLine.Output(),
		"Usage: suitcapture [flags] port outfile_base number_of_files number_of_frames number_of_channels [verbose:0|1]")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

// run does all the work of main and returns the process exit code, so that
// deferred cleanup happens before exit.
func run() int {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	suitcap.Build.Date = buildDate
	suitcap.Build.Githash = githash
	suitcap.Build.Gitdate = gitdate
	suitcap.Build.Summary = fmt.Sprintf("suitcapture version %s (git commit %s of %s)", suitcap.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		suitcap.Build.Host = host
	} else {
		suitcap.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	configFile := flag.String("config", "", "read this config file instead of searching for config.yaml")
	flag.Usage = usage
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is suitcapture version %s\n", suitcap.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		return 0
	}

	runConfig, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "suitcapture: %v\n", err)
		usage()
		return 1
	}

	banner := fmt.Sprintf("\nThis is suitcapture version %s (git commit %s)\n", suitcap.Build.Version, githash)
	fmt.Print(banner)

	// Log problems and updates to 2 rotating log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		return fatal(err)
	}
	logdir := filepath.Join(HOME, ".suitcap", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		return fatal(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		return fatal(err)
	}
	suitcap.ProblemLogger = startLogger(problemname)
	suitcap.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems to %s\n", problemname)
	fmt.Printf("Logging updates  to %s\n\n", logname)
	suitcap.UpdateLogger.Printf("\n\n\n\n%s", banner)

	if err := setupViper(*configFile); err != nil {
		return fatal(err)
	}
	settings, err := suitcap.LoadCaptureConfig(viper.GetViper())
	if err != nil {
		return fatal(err)
	}
	if runConfig.Verbose {
		fmt.Printf("Using config file %s\n", viper.ConfigFileUsed())
		spew.Dump(runConfig, settings)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, _ := settings.SinkKind()
	factory, err := suitcap.NewSinkFactory(ctx, kind, settings.ClickHouse)
	if err != nil {
		return fatal(err)
	}
	defer factory.Close()

	listener, err := suitcap.NewListener(runConfig.Port, suitcap.ListenerConfig{
		ReadTimeout: settings.ReadTimeout,
		RecvBuffer:  settings.RecvBuffer,
	})
	if err != nil {
		return fatal(err)
	}
	defer listener.Close()

	capture, err := suitcap.NewCapture(runConfig, settings, listener, factory, os.Stdout)
	if err != nil {
		return fatal(err)
	}
	if settings.StatusPort > 0 {
		pub, err := suitcap.NewStatusPublisher(settings.StatusPort)
		if err != nil {
			suitcap.ProblemLogger.Printf("Status publisher disabled: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: status publisher disabled: %v\n", err)
		} else {
			defer pub.Close()
			capture.SetPublisher(pub)
		}
	}
	fmt.Printf("Run %s listening on UDP port %d\n", capture.RunID, listener.Addr().Port)

	err = capture.Run(ctx)
	switch {
	case err == nil:
		fmt.Printf("Run %s complete; metadata in %s\n", capture.RunID, capture.RunLog)
	case errors.Is(err, context.Canceled):
		fmt.Printf("\nInterrupted. Run %s closed cleanly; metadata in %s\n", capture.RunID, capture.RunLog)
		suitcap.UpdateLogger.Printf("Run %s interrupted by signal", capture.RunID)
	default:
		return fatal(err)
	}
	return 0
}

// fatal reports err the way every fatal error is reported and returns exit code 1.
func fatal(err error) int {
	fmt.Fprintf(os.Stderr, "suitcapture: error: %v\n", err)
	suitcap.ProblemLogger.Printf("Fatal: %v", err)
	return 1
}
