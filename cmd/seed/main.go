package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/handler"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/logger"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/repository"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/seed"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var dir string
	var username string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机教师, 2: 插入随机课程, 3: 插入随机教室, 4: 为所有教师生成随机偏好, 5: 导入真实数据, 6: 签发令牌)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.StringVar(&dir, "dir", "./internal/seed/data", "真实数据所在的目录")
	flag.StringVar(&username, "username", "", "签发令牌的教师用户名")
	flag.Parse()

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法读取配置文件: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法创建 logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Error("无法创建数据库连接池", zap.Error(err))
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		log.Error("无法连接到数据库", zap.Error(err))
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	// 执行操作
	switch op {
	case 0:
		log.Error("未指定操作")
	case 1:
		if n <= 0 {
			log.Error("请输入合法的教师数量")
			return
		}
		cnt := 0
		for i := 0; i < n; i++ {
			professor := utils.GenerateRandomProfessor(cfg.Email.UserDomain)
			if err := repo.CreateProfessor(professor); err != nil {
				log.Error("无法插入教师", zap.Error(err))
				continue
			}
			cnt++
		}
		log.Info("插入教师成功", zap.Int("count", cnt))
	case 2:
		if n <= 0 {
			log.Error("请输入合法的课程数量")
			return
		}
		existing, err := repo.GetAllCourses()
		if err != nil {
			log.Error("无法获取课程", zap.Error(err))
			return
		}
		cnt := 0
		for i := 0; i < n; i++ {
			course := utils.GenerateRandomCourse(len(existing) + i)
			if err := repo.CreateCourse(course); err != nil {
				log.Error("无法插入课程", zap.Error(err))
				continue
			}
			cnt++
		}
		log.Info("插入课程成功", zap.Int("count", cnt))
	case 3:
		if n <= 0 {
			log.Error("请输入合法的教室数量")
			return
		}
		existing, err := repo.GetAvailableRooms()
		if err != nil {
			log.Error("无法获取教室", zap.Error(err))
			return
		}
		cnt := 0
		for i := 0; i < n; i++ {
			room := utils.GenerateRandomRoom(len(existing) + i)
			if err := repo.CreateRoom(room); err != nil {
				log.Error("无法插入教室", zap.Error(err))
				continue
			}
			cnt++
		}
		log.Info("插入教室成功", zap.Int("count", cnt))
	case 4:
		professors, err := repo.GetAllProfessors()
		if err != nil {
			log.Error("无法获取教师", zap.Error(err))
			return
		}
		courses, err := repo.GetAllCourses()
		if err != nil {
			log.Error("无法获取课程", zap.Error(err))
			return
		}
		if len(courses) == 0 {
			log.Error("数据库中没有课程")
			return
		}
		cnt := 0
		for _, p := range professors {
			if err := repo.UpsertPreference(utils.GenerateRandomPreference(p.ID, courses)); err != nil {
				log.Error("无法插入排课偏好", zap.Int64("professorID", p.ID), zap.Error(err))
				continue
			}
			cnt++
		}
		log.Info("插入排课偏好成功", zap.Int("count", cnt))
	case 5:
		if err := seed.SeedRealData(repo, dir, log); err != nil {
			log.Error("导入真实数据失败", zap.Error(err))
		}
	case 6:
		professor, err := repo.GetProfessorByUsername(username)
		if err != nil {
			log.Error("无法获取教师", zap.String("username", username), zap.Error(err))
			return
		}
		token, err := handler.NewToken(cfg.JWT.Secret, professor, 24*time.Hour)
		if err != nil {
			log.Error("无法签发令牌", zap.Error(err))
			return
		}
		fmt.Printf("%s=%s\n", "__ecnc_timetable_token", token)
		if professor.Role != domain.RoleAdmin {
			log.Info("该教师不是管理员，无法提交全体排课")
		}
	default:
		log.Error("不支持的操作", zap.Int("op", op))
	}
}
