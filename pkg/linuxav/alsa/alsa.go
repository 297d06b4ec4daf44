// Package alsa reads ALSA playback device capabilities from procfs.
//
// Everything is parsed from the text files the kernel exposes under
// /proc/asound, so no device is ever opened and a PCM that is busy playing
// can still be inspected. USB audio cards publish their supported formats in
// stream descriptors (cardN/streamM); the active hardware parameters of an
// open PCM are read from cardN/pcmMp/sub0/hw_params.
//
//	fs := alsa.ProcFS{Root: alsa.DefaultRoot}
//	devices, err := fs.PlaybackDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.ALSADevice(), dev.CardName)
//	    for _, f := range dev.Formats {
//	        fmt.Printf("  %s %dch %v\n", f.Format, f.Channels, f.Rates)
//	    }
//	}
package alsa
