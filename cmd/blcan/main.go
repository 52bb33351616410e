// Command blcan talks to CAN bootloader devices over an SLCAN adapter or a
// TCP-attached bus bridge.
//
// Usage:
//
//	blcan [options] ping [stay]
//	blcan [options] check
//	blcan [options] update FILE
//	blcan [options] boot
//	blcan [options] boot-status
//	blcan [options] bridge-scan [FIRST LAST]
//	blcan [options] bridge-xfer ADDR [TXHEX] [RXLEN]
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb"
	tty "github.com/jacobsa/go-serial/serial"

	"github.com/rhytmics/canboot/can"
	"github.com/rhytmics/canboot/device"
	"github.com/rhytmics/canboot/host"
	"github.com/rhytmics/canboot/image"
	"github.com/rhytmics/canboot/protocol"
)

var (
	port     = flag.String("port", "", "serial port of the SLCAN adapter, or tcp:HOST:PORT")
	deviceID = flag.Uint("id", 0x05, "target device ID")
	bitrate  = flag.Int("bitrate", 500000, "CAN bitrate")
	timeout  = flag.Duration("timeout", 2*time.Second, "per-command reply timeout")
	noVerify = flag.Bool("no-verify", false, "skip the stored-image read-back after update")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] COMMAND [ARGS]\n\nCommands:\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  ping [stay]                  check the device answers; 'stay' holds it in the bootloader")
	fmt.Fprintln(os.Stderr, "  check                        report the stored application image")
	fmt.Fprintln(os.Stderr, "  update FILE                  transfer a .bin or .hex image")
	fmt.Fprintln(os.Stderr, "  boot                         boot the stored application")
	fmt.Fprintln(os.Stderr, "  boot-status                  report the last boot attempt's outcome")
	fmt.Fprintln(os.Stderr, "  bridge-scan [FIRST LAST]     probe the diagnostic bridge address range")
	fmt.Fprintln(os.Stderr, "  bridge-xfer ADDR [TXHEX] [RXLEN]  run one bridge transaction")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}

// openBus connects the CAN adapter: a tcp: target dials a bus bridge,
// anything else opens a local SLCAN serial adapter.
func openBus() (can.Bus, error) {
	if *port == "" {
		return nil, fmt.Errorf("no port given (-port)")
	}

	var rwc io.ReadWriteCloser
	if target, ok := strings.CutPrefix(*port, "tcp:"); ok {
		conn, err := net.Dial("tcp", target)
		if err != nil {
			return nil, fmt.Errorf("net.Dial %s: %w", target, err)
		}
		rwc = conn
	} else {
		ser, err := tty.Open(tty.OpenOptions{
			PortName:              *port,
			BaudRate:              115200,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			InterCharacterTimeout: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("tty.Open %s: %w", *port, err)
		}
		rwc = ser
	}

	bus, err := can.OpenSLCAN(rwc, *bitrate)
	if err != nil {
		rwc.Close()
		return nil, err
	}
	return bus, nil
}

func run() error {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	if *deviceID > protocol.MaxDeviceID {
		return fmt.Errorf("device ID 0x%02X out of range", *deviceID)
	}

	bus, err := openBus()
	if err != nil {
		return err
	}
	defer bus.Close()

	client := host.New(bus, byte(*deviceID),
		host.WithTimeout(*timeout),
		host.WithVerifyAfterUpdate(!*noVerify),
	)
	ctx := context.Background()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "ping":
		stay := len(args) > 0 && args[0] == "stay"
		reply, err := client.Ping(ctx, stay)
		if err != nil {
			return err
		}
		fmt.Printf("device 0x%02X, protocol v%d, stay=%v\n", reply.DeviceID, reply.Version, reply.Stay)
		return nil

	case "check":
		info, err := client.Check(ctx)
		if err != nil {
			return err
		}
		if info.Valid {
			fmt.Printf("application: valid, %d bytes, checksum 0x%08X\n", info.Size, info.CRC)
		} else {
			fmt.Println("application: none")
		}
		if info.Updating {
			fmt.Println("transfer in progress")
		}
		fmt.Printf("device 0x%02X, protocol v%d\n", info.DeviceID, info.Version)
		return nil

	case "update":
		if len(args) != 1 {
			return fmt.Errorf("usage: update FILE")
		}
		return update(ctx, bus, args[0])

	case "boot":
		err := client.BootApp(ctx)
		var se *protocol.StatusError
		if errors.As(err, &se) && se.Status == protocol.StatusErrState {
			return fmt.Errorf("boot failed: %v", protocol.BootError(se.Context))
		}
		if err != nil {
			return err
		}
		fmt.Println("application is running")
		return nil

	case "boot-status":
		code, err := client.BootStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("last boot attempt: %v\n", code)
		return nil

	case "bridge-scan":
		first, last := byte(0x08), byte(0x77)
		if len(args) == 2 {
			f, err := strconv.ParseUint(args[0], 0, 7)
			if err != nil {
				return fmt.Errorf("bad first address %q: %w", args[0], err)
			}
			l, err := strconv.ParseUint(args[1], 0, 7)
			if err != nil {
				return fmt.Errorf("bad last address %q: %w", args[1], err)
			}
			first, last = byte(f), byte(l)
		}
		found, err := client.BridgeScan(ctx, first, last)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("no peripherals found")
			return nil
		}
		for _, addr := range found {
			fmt.Printf("0x%02X\n", addr)
		}
		return nil

	case "bridge-xfer":
		if len(args) < 1 {
			return fmt.Errorf("usage: bridge-xfer ADDR [TXHEX] [RXLEN]")
		}
		addr, err := strconv.ParseUint(args[0], 0, 7)
		if err != nil {
			return fmt.Errorf("bad address %q: %w", args[0], err)
		}
		var tx []byte
		if len(args) > 1 && args[1] != "" {
			tx, err = hex.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("bad tx data %q: %w", args[1], err)
			}
		}
		var rxLen uint64
		if len(args) > 2 {
			rxLen, err = strconv.ParseUint(args[2], 0, 8)
			if err != nil {
				return fmt.Errorf("bad rx length %q: %w", args[2], err)
			}
		}
		rx, err := client.BridgeTransfer(ctx, byte(addr), tx, byte(rxLen))
		if err != nil {
			return err
		}
		if len(rx) > 0 {
			fmt.Printf("%s\n", hex.EncodeToString(rx))
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func update(ctx context.Context, bus can.Bus, path string) error {
	layout := device.DefaultLayout()
	img, err := image.Load(path, layout.AppStart(), layout.AppMaxSize())
	if err != nil {
		return err
	}
	fmt.Printf("image: %d bytes, checksum 0x%08X\n", len(img.Data), img.Checksum())

	bar := pb.New(len(img.Data)).SetUnits(pb.U_BYTES)
	bar.Start()

	updater := host.New(bus, byte(*deviceID),
		host.WithTimeout(*timeout),
		host.WithVerifyAfterUpdate(!*noVerify),
		host.WithProgressCallback(func(p host.Progress) {
			bar.Set(p.BytesSent)
		}),
	)
	err = updater.Update(ctx, img.Data)
	bar.Finish()
	if err != nil {
		return err
	}
	fmt.Println("update complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
