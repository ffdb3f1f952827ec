// Package report exports reservation lists as xlsx workbooks.
package report

import (
	"fmt"
	"io"
	"strings"

	"campusbook/internal/models"
	"campusbook/internal/timeline"
)

var reservationColumns = []string{"ID", "Date", "Start", "End", "Booked by", "Participants", "Purpose", "Status"}

// RoomTimeline writes a summary sheet followed by one sheet per day.
func RoomTimeline(out io.Writer, room models.Room, days []timeline.Day) error {
	w := newSheetWriter()
	defer w.close()

	if err := w.addSheet(room.Name); err != nil {
		return err
	}
	if err := w.writeHeader("Room", "Location", "Capacity", "Equipment"); err != nil {
		return err
	}
	if err := w.writeRow(room.Name, room.Location, room.Capacity, strings.Join(room.Equipments, ", ")); err != nil {
		return err
	}
	if err := w.writeRow(); err != nil {
		return err
	}
	if err := w.writeHeader("Date", "Reservations", "Booked hours"); err != nil {
		return err
	}
	for _, d := range days {
		var minutes int
		for _, r := range d.Reservations {
			minutes += int(r.Duration().Minutes())
		}
		if err := w.writeRow(d.Date.String(), len(d.Reservations), float64(minutes)/60); err != nil {
			return err
		}
	}

	for _, d := range days {
		if err := w.addSheet(d.Date.String()); err != nil {
			return err
		}
		if err := writeReservations(w, d.Reservations); err != nil {
			return err
		}
	}

	if err := w.save(out); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Reservations writes list on a single sheet titled title.
func Reservations(out io.Writer, title string, list []models.Reservation) error {
	w := newSheetWriter()
	defer w.close()

	if err := w.addSheet(title); err != nil {
		return err
	}
	if err := writeReservations(w, list); err != nil {
		return err
	}
	if err := w.save(out); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeReservations(w *sheetWriter, list []models.Reservation) error {
	if err := w.writeHeader(reservationColumns...); err != nil {
		return err
	}
	for _, r := range list {
		bookedBy := r.UserName
		if bookedBy == "" {
			bookedBy = fmt.Sprintf("#%d", r.UserID)
		}
		err := w.writeRow(
			r.ID,
			r.Date.String(),
			r.StartTime.String(),
			r.EndTime.String(),
			bookedBy,
			participants(r.Participants),
			r.Purpose,
			string(r.Status),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func participants(list []models.Participant) string {
	parts := make([]string, 0, len(list))
	for _, p := range list {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ", ")
}
