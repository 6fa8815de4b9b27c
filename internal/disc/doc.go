// Package disc drives the optical drive through external tools.
//
// Tray actuation shells out to eject, imaging to the archiver script, and
// the tray state is read directly with the CDROM_DRIVE_STATUS ioctl so the
// status command can report it without touching the tray.
package disc
