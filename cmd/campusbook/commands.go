package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"campusbook/internal/api"
	"campusbook/internal/booking"
	"campusbook/internal/config"
	"campusbook/internal/models"
	"campusbook/internal/notifications"
	"campusbook/internal/quota"
	"campusbook/internal/realtime"
	"campusbook/internal/reservations"
	"campusbook/internal/report"
	"campusbook/internal/slots"
	"campusbook/internal/timeline"
)

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *app) cmdLogin(ctx context.Context) error {
	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s> (%s)\n", sess.User.Name, sess.User.Email, sess.User.Role)
	return nil
}

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	fs := newFlags("signup")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	role := fs.String("role", string(models.RoleStudent), "student or admin")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess, err := a.sessions.Signup(ctx, api.SignupRequest{
		Name: *name, Email: *email, Password: *password, Role: models.Role(*role),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registered %s <%s> as user #%d\n", sess.User.Name, sess.User.Email, sess.User.ID)
	return nil
}

func (a *app) printRooms(list []models.Room) error {
	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tCAPACITY\tEQUIPMENT\tAVAILABLE")
	for _, r := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%t\n", r.ID, r.Name, r.Location, r.Capacity, strings.Join(r.Equipments, ","), r.Available)
	}
	return tw.Flush()
}

func (a *app) cmdRooms(ctx context.Context, args []string) error {
	fs := newFlags("rooms")
	search := fs.String("search", "", "name or location contains")
	minCap := fs.Int("min", 0, "minimum capacity")
	if err := parse(fs, args); err != nil {
		return err
	}

	list, err := a.rooms.List(ctx, api.RoomFilter{Search: *search, MinCapacity: *minCap})
	if err != nil {
		return err
	}
	return a.printRooms(list)
}

func (a *app) cmdFree(ctx context.Context, args []string) error {
	fs := newFlags("free")
	date := fs.String("date", "", "YYYY-MM-DD, today or tomorrow")
	start := fs.String("start", "", "HH:MM")
	end := fs.String("end", "", "HH:MM")
	if err := parse(fs, args); err != nil {
		return err
	}

	d, err := a.parseDate(*date)
	if err != nil {
		return err
	}
	iv, err := parseInterval(*start, *end)
	if err != nil {
		return err
	}
	list, err := a.rooms.SearchFree(ctx, d, iv)
	if err != nil {
		return err
	}
	return a.printRooms(list)
}

func (a *app) cmdPopular(ctx context.Context) error {
	list, err := a.rooms.Popular(ctx)
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "RANK\tROOM\tLOCATION\tRESERVATIONS")
	for i, u := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i+1, u.Name, u.Location, u.ReservationCount)
	}
	return tw.Flush()
}

func (a *app) cmdSlots(ctx context.Context, args []string) error {
	fs := newFlags("slots")
	roomID := fs.Int64("room", 0, "room id")
	date := fs.String("date", "", "YYYY-MM-DD, today or tomorrow")
	if err := parse(fs, args); err != nil {
		return err
	}

	d, err := a.parseDate(*date)
	if err != nil {
		return err
	}
	room, err := a.rooms.Get(ctx, *roomID)
	if err != nil {
		return err
	}

	gen := slots.NewGenerator(nil, a.cfg.SlotGrid())
	list, err := slots.NewEvaluator(a.client).Slots(ctx, gen, room.ID, d)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s), %s\n", room.Name, room.Location, d)
	for _, s := range list {
		mark := "free"
		if !s.Available {
			mark = "booked"
		}
		fmt.Fprintf(a.out, "  %s-%s  %s\n", s.Start, s.End, mark)
	}
	for _, group := range slots.FindConsecutiveSlots(list) {
		if iv, ok := slots.Merge(group); ok && len(group) > 1 {
			fmt.Fprintf(a.out, "Free block: %s\n", iv)
		}
	}
	return nil
}

func (a *app) cmdBook(ctx context.Context, args []string) error {
	fs := newFlags("book")
	roomID := fs.Int64("room", 0, "room id")
	date := fs.String("date", "", "YYYY-MM-DD, today or tomorrow")
	start := fs.String("start", "", "HH:MM")
	end := fs.String("end", "", "HH:MM")
	purpose := fs.String("purpose", "", "purpose of the reservation")
	members := fs.String("members", "", "comma separated member ids")
	guests := fs.String("guests", "", "comma separated guest names")
	joinWaitlist := fs.Bool("waitlist", false, "join the waitlist if the slot is taken")
	if err := parse(fs, args); err != nil {
		return err
	}

	if _, err := a.signIn(ctx); err != nil {
		return err
	}
	d, err := a.parseDate(*date)
	if err != nil {
		return err
	}
	room, err := a.rooms.Get(ctx, *roomID)
	if err != nil {
		return err
	}
	ids, err := parseIDs(*members)
	if err != nil {
		return err
	}

	ctrl := booking.NewController(a.client, a.quota, a.waitlist, a.sessions,
		booking.NavigatorFunc(func(path string) { a.logger.Debug().Str("path", path).Msg("navigate") }),
		booking.Options{LegacyNumericGuests: a.cfg.LegacyNumericGuests(), ReturnPath: a.cfg.ReturnPath()},
		a.logger,
	)
	for _, id := range ids {
		ctrl.Roster().AddMember(id)
	}
	for _, g := range splitList(*guests) {
		ctrl.Roster().AddGuest(g)
	}

	iv := slots.Interval{Start: models.NoTime, End: models.NoTime}
	if *start != "" {
		if iv.Start, err = models.ParseClock(*start); err != nil {
			return err
		}
	}
	if *end != "" {
		if iv.End, err = models.ParseClock(*end); err != nil {
			return err
		}
	}
	if err := ctrl.SelectSlot(*room, d, iv); err != nil {
		return err
	}

	res, err := ctrl.Submit(ctx, *purpose)
	if err == nil {
		fmt.Fprintf(a.out, "Reserved %s on %s %s (reservation #%d)\n", room.Name, res.Date, iv, res.ID)
		return nil
	}
	if ctrl.State() != booking.StateWaitlistOffered {
		return err
	}

	fmt.Fprintln(a.out, booking.UserMessage(err))
	if !*joinWaitlist {
		fmt.Fprintln(a.out, "Run again with -waitlist to join the waitlist.")
		return nil
	}
	entry, err := ctrl.JoinWaitlist(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added to the waitlist for %s on %s %s (entry #%d)\n", room.Name, entry.Date, iv, entry.ID)
	return nil
}

func (a *app) cmdCancel(ctx context.Context, args []string) error {
	fs := newFlags("cancel")
	id := fs.Int64("id", 0, "reservation id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.client.CancelReservation(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Reservation #%d cancelled\n", *id)
	return nil
}

func (a *app) printReservations(list []models.Reservation) error {
	tw := a.table()
	fmt.Fprintln(tw, "ID\tROOM\tDATE\tTIME\tPARTICIPANTS\tPURPOSE\tSTATUS")
	for i := range list {
		r := &list[i]
		room := fmt.Sprintf("#%d", r.RoomID)
		if r.Room != nil && r.Room.Name != "" {
			room = r.Room.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s-%s\t%d\t%s\t%s\n",
			r.ID, room, r.Date, r.StartTime, r.EndTime, len(r.Participants), r.Purpose, r.Status)
	}
	return tw.Flush()
}

func (a *app) cmdMy(ctx context.Context, args []string) error {
	fs := newFlags("my")
	history := fs.Bool("history", false, "also list cancelled reservations")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	list, err := a.client.MyReservations(ctx, sess.UserID())
	if err != nil {
		return err
	}
	reservations.SortByStart(list)

	active := reservations.Active(list)
	if len(active) == 0 {
		fmt.Fprintln(a.out, "No active reservations.")
	} else if err := a.printReservations(active); err != nil {
		return err
	}
	if *history {
		if past := reservations.History(list); len(past) > 0 {
			fmt.Fprintln(a.out, "\nCancelled:")
			if err := a.printReservations(past); err != nil {
				return err
			}
		}
	}
	used := quota.Count(active, a.now())
	fmt.Fprintf(a.out, "\nUpcoming reservations: %d of %d\n", used, a.quota.Ceiling())
	return nil
}

func (a *app) cmdWaitlist(ctx context.Context, args []string) error {
	fs := newFlags("waitlist")
	cancelID := fs.Int64("cancel", 0, "cancel this waitlist entry")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	if *cancelID > 0 {
		if err := a.waitlist.Cancel(ctx, *cancelID); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Waitlist entry #%d cancelled\n", *cancelID)
		return nil
	}

	list, err := a.waitlist.ListActive(ctx, sess)
	if err != nil {
		return err
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tROOM\tDATE\tTIME\tREQUESTED")
	for _, e := range list {
		fmt.Fprintf(tw, "%d\t#%d\t%s\t%s-%s\t%s\n", e.ID, e.RoomID, e.Date, e.StartTime, e.EndTime, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (a *app) cmdNotifications(ctx context.Context, args []string) error {
	fs := newFlags("notifications")
	readID := fs.Int64("read", 0, "mark this notification as read")
	all := fs.Bool("all", false, "mark every notification as read")
	if err := parse(fs, args); err != nil {
		return err
	}

	if _, err := a.signIn(ctx); err != nil {
		return err
	}
	list, err := a.feed.Refresh(ctx)
	if err != nil {
		return err
	}
	switch {
	case *readID > 0:
		return a.feed.MarkRead(ctx, *readID)
	case *all:
		return a.feed.MarkAllRead(ctx)
	}

	for _, n := range list {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s #%d %s  %s\n", mark, n.ID, n.CreatedAt.In(a.cfg.Location()).Format("01-02 15:04"), n.Message)
	}
	fmt.Fprintf(a.out, "%d unread\n", a.feed.UnreadCount())
	return nil
}

func (a *app) cmdTimeline(ctx context.Context, args []string) error {
	fs := newFlags("timeline")
	roomID := fs.Int64("room", 0, "room id")
	date := fs.String("date", "", "YYYY-MM-DD; empty lists the recent week and everything ahead")
	follow := fs.Bool("follow", false, "keep printing as reservations change")
	if err := parse(fs, args); err != nil {
		return err
	}

	var d models.Date
	if *date != "" {
		var err error
		if d, err = a.parseDate(*date); err != nil {
			return err
		}
	}

	var feed realtime.Feed
	if *follow {
		feed = a.feedSource()
	}
	opts := []timeline.Option{}
	if *follow {
		opts = append(opts, timeline.WithUpdateHook(func(list []models.Reservation) {
			fmt.Fprintf(a.out, "-- updated %s --\n", a.now().Format("15:04:05"))
			_ = a.printReservations(list)
		}))
	}

	view, err := timeline.Open(ctx, *roomID, a.client, feed, a.logger, opts...)
	if err != nil {
		return err
	}
	defer view.Close()

	if !d.IsZero() {
		if err := view.SetDate(ctx, d); err != nil {
			return err
		}
	}
	if !*follow {
		return a.printReservations(view.Reservations())
	}
	if feed == nil {
		a.logger.Warn().Msg("realtime updates are disabled; showing a static timeline")
		return nil
	}

	if a.cfg.Monitoring.PrometheusEnabled && a.cfg.Monitoring.PrometheusPort > 0 {
		go startMetricsServer(ctx, a.cfg.Monitoring.PrometheusPort, a.logger)
	}
	<-ctx.Done()
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := newFlags("export")
	roomID := fs.Int64("room", 0, "export this room's timeline")
	out := fs.String("out", "reservations.xlsx", "output file")
	if err := parse(fs, args); err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	if *roomID > 0 {
		room, err := a.rooms.Get(ctx, *roomID)
		if err != nil {
			return err
		}
		view, err := timeline.Open(ctx, room.ID, a.client, nil, a.logger)
		if err != nil {
			return err
		}
		defer view.Close()
		if err := report.RoomTimeline(f, *room, view.Days()); err != nil {
			return err
		}
	} else {
		sess, err := a.signIn(ctx)
		if err != nil {
			return err
		}
		list, err := a.client.MyReservations(ctx, sess.UserID())
		if err != nil {
			return err
		}
		if err := report.Reservations(f, sess.User.Name, list); err != nil {
			return err
		}
	}

	fmt.Fprintf(a.out, "Wrote %s\n", *out)
	return f.Close()
}

// cmdWatch follows notifications and hot-reloads the conflict keywords.
func (a *app) cmdWatch(ctx context.Context) error {
	if _, err := a.signIn(ctx); err != nil {
		return err
	}

	if a.cfg.Monitoring.PrometheusEnabled && a.cfg.Monitoring.PrometheusPort > 0 {
		go startMetricsServer(ctx, a.cfg.Monitoring.PrometheusPort, a.logger)
	}

	go func() {
		err := config.Watch(ctx, a.configPath, 30*time.Second, func(cfg *config.Config) {
			a.client.SetConflictKeywords(cfg.APIConfig().ConflictKeywords)
			a.logger.Debug().Msg("conflict keywords reloaded")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("config watch stopped")
		}
	}()

	w := notifications.NewWatcher(a.feed, a.cfg.NotificationPollInterval(), func(unread int) {
		fmt.Fprintf(a.out, "%s  %d unread notification(s)\n", a.now().Format("15:04:05"), unread)
		for _, n := range a.feed.Items() {
			if !n.Read {
				fmt.Fprintf(a.out, "  * %s\n", n.Message)
			}
		}
	}, a.logger)
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()
	return nil
}

func roomInputFlags(fs *flag.FlagSet) func() api.RoomInput {
	name := fs.String("name", "", "room name")
	location := fs.String("location", "", "location")
	capacity := fs.Int("capacity", 0, "capacity")
	equipment := fs.String("equipment", "", "comma separated equipment")
	description := fs.String("description", "", "description")
	available := fs.String("available", "", "true or false")
	return func() api.RoomInput {
		in := api.RoomInput{
			Name:        *name,
			Location:    *location,
			Capacity:    *capacity,
			Equipments:  splitList(*equipment),
			Description: *description,
		}
		switch strings.ToLower(*available) {
		case "true", "yes", "1":
			v := true
			in.Available = &v
		case "false", "no", "0":
			v := false
			in.Available = &v
		}
		return in
	}
}

func (a *app) cmdRoomAdd(ctx context.Context, args []string) error {
	fs := newFlags("room-add")
	input := roomInputFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	room, err := a.rooms.Create(ctx, sess, input())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created room #%d %s\n", room.ID, room.Name)
	return nil
}

func (a *app) cmdRoomUpdate(ctx context.Context, args []string) error {
	fs := newFlags("room-update")
	id := fs.Int64("id", 0, "room id")
	input := roomInputFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	room, err := a.rooms.Update(ctx, sess, *id, input())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated room #%d %s\n", room.ID, room.Name)
	return nil
}

func (a *app) cmdRoomDelete(ctx context.Context, args []string) error {
	fs := newFlags("room-delete")
	id := fs.Int64("id", 0, "room id")
	if err := parse(fs, args); err != nil {
		return err
	}
	sess, err := a.signIn(ctx)
	if err != nil {
		return err
	}
	if err := a.rooms.Delete(ctx, sess, *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted room #%d\n", *id)
	return nil
}
