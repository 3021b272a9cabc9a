package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pbterm/config"
	"pbterm/devapi"
	"pbterm/doctor"
	"pbterm/export"
	"pbterm/log"
	"pbterm/shutdown"
	"pbterm/sim"
)

type rootFlags struct {
	configPath  string
	host        string
	logPath     string
	downloadDir string
	plain       bool
	save        bool
	linger      time.Duration
}

type app struct {
	flags rootFlags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pbterm",
		Short:         "Terminal client for PicoBridge serial bridges",
		Long:          "pbterm opens an interactive terminal session to a PicoBridge over its WebSocket stream and manages the bridge over REST.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			log.Close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTerminal(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default: "+config.DefaultPath()+")")
	pf.StringVar(&a.flags.host, "host", "", "bridge host, e.g. 192.168.4.1 or bridge.lan:8080")
	pf.StringVar(&a.flags.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")

	f := root.Flags()
	f.BoolVar(&a.flags.plain, "plain", false, "line mode: read input from stdin, write output to stdout")
	f.BoolVar(&a.flags.save, "save", false, "save the transcript when the session ends")
	f.StringVar(&a.flags.downloadDir, "download-dir", "", "where saved transcripts go (default: ~/Downloads)")
	f.DurationVar(&a.flags.linger, "linger", time.Second, "in line mode, how long to keep reading output after stdin closes")

	root.AddCommand(
		a.newSettingsCmd(),
		a.newIdentifyCmd(),
		a.newCRLFCmd(),
		newSimCmd(),
		a.newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	path := a.flags.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	a.flags.configPath = path

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.flags.host != "" {
		cfg.Host = a.flags.host
	}
	if a.flags.downloadDir != "" {
		cfg.DownloadDir = a.flags.downloadDir
	}
	if a.flags.logPath == "" {
		a.flags.logPath = cfg.LogPath
	}
	a.cfg = cfg

	setupLogging(a.flags.logPath)
	return nil
}

func (a *app) client() (*devapi.Client, error) {
	return devapi.New(a.cfg.Host, a.cfg.Timeout())
}

func (a *app) downloadDir() string {
	if a.cfg.DownloadDir != "" {
		return a.cfg.DownloadDir
	}
	return export.DefaultDir()
}

func (a *app) runTerminal(parent context.Context) error {
	ctx, stop := shutdown.Context(parent)
	defer stop()

	plain := a.flags.plain || !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd()))
	if plain {
		return runPlain(ctx, plainOptions{
			host:    a.cfg.Host,
			in:      os.Stdin,
			out:     os.Stdout,
			errOut:  os.Stderr,
			saveDir: a.saveDir(),
			linger:  a.flags.linger,
		})
	}

	api, err := a.client()
	if err != nil {
		return err
	}
	return runTUI(ctx, tuiOptions{
		host:        a.cfg.Host,
		api:         api,
		downloadDir: a.downloadDir(),
		saveOnExit:  a.flags.save,
	})
}

func (a *app) saveDir() string {
	if !a.flags.save {
		return ""
	}
	return a.downloadDir()
}

func (a *app) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the bridge settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			s, err := c.Settings(cmd.Context())
			if err != nil {
				return err
			}
			printSettings(cmd, s)
			return nil
		},
	}
	cmd.AddCommand(a.newSettingsSetCmd())
	return cmd
}

func printSettings(cmd *cobra.Command, s *devapi.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "device:       %s\n", s.PluggedDevice)
	fmt.Fprintf(out, "location:     %s\n", s.Location)
	fmt.Fprintf(out, "uart:         %d baud, %d bits, parity %s, %d stop\n",
		s.UART.Baudrate, s.UART.Bits, devapi.ParityString(s.UART.Parity), s.UART.Stop)
	mode := "infrastructure"
	if s.WLAN.IsAdHoc {
		mode = "ad-hoc"
	}
	fmt.Fprintf(out, "wlan:         %s, ssid %q\n", mode, s.ActiveNetwork().SSID)
	saver := "off"
	if s.Screensaver.Enabled {
		saver = fmt.Sprintf("after %ds", s.Screensaver.IdleTimerS)
	}
	fmt.Fprintf(out, "screensaver:  %s\n", saver)
}

type settingsFlags struct {
	baud       int
	bits       int
	parity     string
	stop       int
	device     string
	location   string
	adhoc      bool
	ssid       string
	psk        string
	screensave bool
	idle       int
}

// newSettingsSetCmd edits the current settings and saves the full set back,
// so flags that are not given keep their current values.
func (a *app) newSettingsSetCmd() *cobra.Command {
	var sf settingsFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change bridge settings (the device may restart its network)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			s, err := c.Settings(cmd.Context())
			if err != nil {
				return err
			}
			if err := applySettingsFlags(cmd, &sf, s); err != nil {
				return err
			}
			if err := c.SaveSettings(cmd.Context(), *s); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&sf.baud, "baud", 0, "UART baud rate")
	f.IntVar(&sf.bits, "bits", 0, "UART data bits (7, 8 or 9)")
	f.StringVar(&sf.parity, "parity", "", "UART parity: none, even or odd")
	f.IntVar(&sf.stop, "stop", 0, "UART stop bits (1 or 2)")
	f.StringVar(&sf.device, "device", "", "name of the plugged device")
	f.StringVar(&sf.location, "location", "", "where the bridge is installed")
	f.BoolVar(&sf.adhoc, "adhoc", false, "host an ad-hoc network instead of joining one")
	f.StringVar(&sf.ssid, "ssid", "", "SSID of the selected network")
	f.StringVar(&sf.psk, "psk", "", "passphrase of the selected network")
	f.BoolVar(&sf.screensave, "screensaver", false, "enable the display screensaver")
	f.IntVar(&sf.idle, "idle", 0, "screensaver idle timer in seconds")
	return cmd
}

func applySettingsFlags(cmd *cobra.Command, sf *settingsFlags, s *devapi.Settings) error {
	changed := cmd.Flags().Changed
	if changed("baud") {
		s.UART.Baudrate = sf.baud
	}
	if changed("bits") {
		s.UART.Bits = sf.bits
	}
	if changed("parity") {
		p, err := devapi.ParseParity(sf.parity)
		if err != nil {
			return err
		}
		s.UART.Parity = p
	}
	if changed("stop") {
		s.UART.Stop = sf.stop
	}
	if changed("device") {
		s.PluggedDevice = sf.device
	}
	if changed("location") {
		s.Location = sf.location
	}
	if changed("adhoc") {
		s.WLAN.IsAdHoc = sf.adhoc
	}
	nw := &s.WLAN.Infrastructure
	if s.WLAN.IsAdHoc {
		nw = &s.WLAN.AdHoc
	}
	if changed("ssid") {
		nw.SSID = sf.ssid
	}
	if changed("psk") {
		nw.PSK = sf.psk
	}
	if changed("screensaver") {
		s.Screensaver.Enabled = sf.screensave
	}
	if changed("idle") {
		s.Screensaver.IdleTimerS = sf.idle
	}
	return nil
}

func (a *app) newIdentifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "identify [on|off]",
		Short:     "Show or set identify mode (the bridge flashes its display)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				on, err := parseOnOff(args[0])
				if err != nil {
					return err
				}
				if err := c.SetIdentify(cmd.Context(), on); err != nil {
					return err
				}
			}
			on, err := c.Identify(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "identify: %s\n", onOff(on))
			return nil
		},
	}
}

func (a *app) newCRLFCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crlf <uart-to-crlf|crlf-to-uart> <on|off>",
		Short: "Control CR/LF translation on the bridge",
		Long: "uart-to-crlf turns LF in device output into CRLF.\n" +
			"crlf-to-uart appends a CR to every line sent to the device.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			switch args[0] {
			case "uart-to-crlf":
				err = c.SetUARTToCRLF(cmd.Context(), on)
			case "crlf-to-uart":
				err = c.SetCRLFToUART(cmd.Context(), on)
			default:
				return fmt.Errorf("unknown translation %q (use uart-to-crlf or crlf-to-uart)", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], onOff(on))
			return nil
		},
	}
}

func newSimCmd() *cobra.Command {
	var (
		addr     string
		username string
		password string
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a simulated bridge for development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := shutdown.Context(cmd.Context())
			defer stop()

			d := sim.New(sim.Options{Username: username, Password: password})
			fmt.Fprintf(cmd.ErrOrStderr(), "simulated bridge on %s (ctrl+c to stop)\n", addr)
			err := sim.Serve(ctx, addr, d)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&username, "user", "", "console username (empty accepts any login)")
	cmd.Flags().StringVar(&password, "password", "", "console password")
	return cmd
}

func (a *app) newDoctorCmd() *cobra.Command {
	var skipClipboard bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run connectivity diagnostics",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			code := doctor.Run(doctor.Options{
				Host:          a.cfg.Host,
				ConfigPath:    a.flags.configPath,
				LogDir:        log.Dir(),
				Timeout:       a.cfg.Timeout(),
				SkipClipboard: skipClipboard,
			}, cmd.OutOrStdout())
			log.Close()
			os.Exit(code)
		},
	}
	cmd.Flags().BoolVar(&skipClipboard, "no-clipboard", false, "skip the clipboard check")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		// No config or logging needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pbterm %s\n", version)
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "enable", "start":
		return true, nil
	case "off", "disable", "stop":
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
