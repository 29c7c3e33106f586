package seed

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Store 是导入数据时用到的持久化操作
type Store interface {
	CreateCourse(c *domain.Course) error
	CreateRoom(room *domain.Room) error
	GetAllCourses() ([]*domain.Course, error)
	GetProfessorByUsername(username string) (*domain.Professor, error)
	CreateProfessor(p *domain.Professor) error
	UpsertPreference(pref *domain.ProfessorPreference) error
}

// readRecords 读取带表头的 CSV，每一行转换为 表头 -> 值 的映射
func readRecords(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\ufeff"))
	}

	// 读取数据
	var records []map[string]string
	for {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		record := make(map[string]string)
		for i, value := range row {
			record[headers[i]] = strings.TrimSpace(value)
		}
		records = append(records, record)
	}

	return records, nil
}

func atoi32(record map[string]string, key string) (int32, error) {
	v := record[key]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("列 %s 的值 %q 不是整数", key, v)
	}
	return int32(n), nil
}

func ParseCourse(record map[string]string) (*domain.Course, error) {
	course := &domain.Course{
		Code:       record["课程代码"],
		Name:       record["课程名称"],
		Department: record["院系"],
		RoomType:   domain.RoomType(record["教室类型"]),
	}
	if course.Code == "" || course.Name == "" {
		return nil, errors.New("课程代码和课程名称不能为空")
	}

	var err error
	if course.Credits, err = atoi32(record, "学分"); err != nil {
		return nil, err
	}
	if course.WorkloadHours, err = atoi32(record, "学时"); err != nil {
		return nil, err
	}
	if course.WeeklyBlocks, err = atoi32(record, "每周课时"); err != nil {
		return nil, err
	}
	if course.Period, err = atoi32(record, "学期"); err != nil {
		return nil, err
	}
	if course.Enrollment, err = atoi32(record, "选课人数"); err != nil {
		return nil, err
	}
	return course, nil
}

func ParseRoom(record map[string]string) (*domain.Room, error) {
	room := &domain.Room{
		Code:      record["教室代码"],
		Name:      record["教室名称"],
		Type:      domain.RoomType(record["类型"]),
		Building:  record["教学楼"],
		Resources: make([]string, 0),
	}
	if room.Code == "" {
		return nil, errors.New("教室代码不能为空")
	}
	switch room.Type {
	case domain.RoomTypeLaboratory, domain.RoomTypeClassroom, domain.RoomTypeAuditorium, domain.RoomTypeMultimedia:
	default:
		return nil, fmt.Errorf("教室 %s 的类型 %q 无效", room.Code, room.Type)
	}

	var err error
	if room.Capacity, err = atoi32(record, "容量"); err != nil {
		return nil, err
	}
	if room.Capacity <= 0 {
		return nil, fmt.Errorf("教室 %s 的容量必须大于 0", room.Code)
	}
	if room.Floor, err = atoi32(record, "楼层"); err != nil {
		return nil, err
	}
	for _, res := range strings.Split(record["设备"], ";") {
		if res = strings.TrimSpace(res); res != "" {
			room.Resources = append(room.Resources, res)
		}
	}
	return room, nil
}

// ParseCoursePreferences 解析 "CS001:5, CS002:3" 形式的课程偏好，省略等级时视为 3
func ParseCoursePreferences(v string, courseByCode map[string]*domain.Course) ([]domain.CoursePreference, error) {
	prefs := make([]domain.CoursePreference, 0)
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		code, levelStr, found := strings.Cut(item, ":")
		level := int64(3)
		if found {
			var err error
			level, err = strconv.ParseInt(strings.TrimSpace(levelStr), 10, 32)
			if err != nil || level < 1 || level > 5 {
				return nil, fmt.Errorf("课程 %s 的偏好等级 %q 无效", code, levelStr)
			}
		}

		course, ok := courseByCode[strings.TrimSpace(code)]
		if !ok {
			return nil, fmt.Errorf("课程 %s 不存在", code)
		}
		prefs = append(prefs, domain.CoursePreference{CourseID: course.ID, Level: int32(level)})
	}
	return prefs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func openRecords(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readRecords(file)
}

// SeedRealData 依次导入 dir 下的 courses.csv、rooms.csv 和 professors.csv
// 已存在的课程和教室会被跳过，已存在的教师只更新偏好
func SeedRealData(store Store, dir string, logger *zap.Logger) error {
	courseRecords, err := openRecords(filepath.Join(dir, "courses.csv"))
	if err != nil {
		return err
	}
	for _, record := range courseRecords {
		course, err := ParseCourse(record)
		if err != nil {
			logger.Error("解析课程失败", zap.Any("record", record), zap.Error(err))
			continue
		}
		if err := store.CreateCourse(course); err != nil {
			if isUniqueViolation(err) {
				logger.Info("课程已存在", zap.String("code", course.Code))
				continue
			}
			return err
		}
	}

	roomRecords, err := openRecords(filepath.Join(dir, "rooms.csv"))
	if err != nil {
		return err
	}
	for _, record := range roomRecords {
		room, err := ParseRoom(record)
		if err != nil {
			logger.Error("解析教室失败", zap.Any("record", record), zap.Error(err))
			continue
		}
		if err := store.CreateRoom(room); err != nil {
			if isUniqueViolation(err) {
				logger.Info("教室已存在", zap.String("code", room.Code))
				continue
			}
			return err
		}
	}

	courses, err := store.GetAllCourses()
	if err != nil {
		return err
	}
	courseByCode := make(map[string]*domain.Course, len(courses))
	for _, c := range courses {
		courseByCode[c.Code] = c
	}

	professorRecords, err := openRecords(filepath.Join(dir, "professors.csv"))
	if err != nil {
		return err
	}
	for _, record := range professorRecords {
		username := record["用户名"]
		if username == "" {
			logger.Error("没有找到用户名", zap.Any("record", record))
			continue
		}

		professor, err := store.GetProfessorByUsername(username)
		if err != nil {
			switch {
			case errors.Is(err, sql.ErrNoRows):
				// 表示该教师不在数据库中，需要新建并插入
				role := domain.RoleProfessor
				if record["角色"] == string(domain.RoleAdmin) {
					role = domain.RoleAdmin
				}
				professor = &domain.Professor{
					Username:   username,
					FullName:   record["姓名"],
					Email:      record["邮箱"],
					Department: record["院系"],
					Role:       role,
				}
				if err := store.CreateProfessor(professor); err != nil {
					logger.Error("插入教师失败", zap.String("username", username), zap.Error(err))
					continue
				}
			default:
				return err
			}
		}

		prefs, err := ParseCoursePreferences(record["课程偏好"], courseByCode)
		if err != nil {
			logger.Error("解析课程偏好失败", zap.String("username", username), zap.Error(err))
			continue
		}
		if len(prefs) == 0 {
			continue
		}

		maxDaily, err := atoi32(record, "每日最多学时")
		if err != nil {
			logger.Error("解析每日最多学时失败", zap.String("username", username), zap.Error(err))
			continue
		}

		if err := store.UpsertPreference(&domain.ProfessorPreference{
			ProfessorID:   professor.ID,
			Courses:       prefs,
			Availability:  make([]domain.AvailabilityWindow, 0),
			Restrictions:  make([]domain.Restriction, 0),
			MaxDailyHours: maxDaily,
			Notes:         record["备注"],
		}); err != nil {
			logger.Error("插入排课偏好失败", zap.String("username", username), zap.Error(err))
			continue
		}
	}

	logger.Info("插入数据完成",
		zap.Int("courses", len(courseRecords)),
		zap.Int("rooms", len(roomRecords)),
		zap.Int("professors", len(professorRecords)),
	)
	return nil
}
