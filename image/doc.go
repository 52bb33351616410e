// Package image loads application firmware images for transfer to the
// bootloader.
//
// Two container formats are supported: raw binary, which is transferred
// byte for byte, and Intel HEX, which is flattened into the contiguous
// byte run the bootloader programs from the application base address.
// Gaps between HEX segments are filled with the erased flash value, so
// the flattened image programs identically to the original layout.
//
// Example:
//
//	layout := device.DefaultLayout()
//	img, err := image.Load("firmware.hex", layout.AppStart(), layout.AppMaxSize())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Update(ctx, img.Data)
package image
